/*
Package runtime provides the RPC session crudflow viewsets register against.

# Architecture Overview

A Service owns a procedure registry that is served as JSON-RPC 2.0 over
HTTP and, when bus RPC is enabled, over the configured Pub/Sub transport
through a Watermill router. The same Service publishes change events as
CloudEvents on that transport.

## Core Service (service.go)

The Service wires together:
  - The procedure registry and JSON-RPC server
  - Publisher and subscriber from the selected transport
  - The Watermill router and its middleware chain
  - HTTP servers for metrics and the web UI

## Procedures (procedures.go, busrpc.go)

Register wraps each procedure with call stats, hooks, an OpenTelemetry span
and Prometheus metrics. With bus RPC enabled the procedure also consumes the
topic named after it and replies on "<procedure>.result" or the topic in the
reply_to metadata, copying the correlation id.

## Middleware (middleware.go)

Bus RPC messages pass through:
  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads
  - Tracer: OpenTelemetry distributed tracing
  - Metrics: Prometheus router metrics
  - Retry: Exponential backoff retry logic
  - PoisonQueue: Dead letter queue for unprocessable messages
  - Recoverer: Panic recovery

## Stats & Monitoring (stats.go, metrics.go, resources.go)

Per procedure call counts, latency percentiles, throughput, error categories
and resource usage samples, exposed on the web UI at /api/procedures.

## Publishing (publisher.go)

Change events are CloudEvents v1.0 whose type is the topic, encoded as
structured JSON or binary protobuf.

# Sub-packages

  - cloudevents/: CloudEvents envelope and message conversion
  - config/: Service configuration with validation
  - errors/: Sentinel errors and error types
  - ids/: ULID generation for event ids and storage keys
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - rpc/: Procedure registry and JSON-RPC server
  - schema/: CUE record validation
  - store/: Document store contract and backend registry
  - viewset/: CRUD capabilities of one collection and the create lock
*/
package runtime
