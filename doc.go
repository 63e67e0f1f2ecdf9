// Package crudflow exposes list, create, update and delete procedures for
// named collections of records over JSON-RPC, stores them in a document
// store, and announces every change as a CloudEvent on a Watermill transport.
//
// A ViewSet binds one collection to an ordered list of capabilities. Register
// walks that list once and registers "<prefix>.list<name>",
// "<prefix>.create<name>", "<prefix>.update<name>" and "<prefix>.delete<name>"
// on the Service. Create validates the "object" argument against a CUE schema,
// then assigns id max+1 under a per-ViewSet lock so concurrent creates never
// share an id. Successful mutations publish "<prefix>.changed<name>" with
// {"object": record} or "<prefix>.deleted<name>" with {"id": id}.
//
// Most programs only need a YAML config and NewApp:
//
//	cfg, err := crudflow.LoadConfig("crudflow.yaml")
//	app, err := crudflow.NewApp(ctx, cfg, logger, crudflow.AppDependencies{})
//	err = app.Run(ctx)
//
// # Stores
//
// Records live in one of three backends selected by the "store" key:
//   - memory: process local, for tests and demos
//   - sqlite: one JSON document per row (mattn/go-sqlite3)
//   - postgres: JSONB documents (lib/pq)
//
// # Transports
//
// Change events go out on any Watermill transport: channel, kafka, rabbitmq,
// aws (SNS/SQS), nats, http or io. With bus_rpc_enabled the same procedures
// are also served from the transport: requests arrive on the procedure topic
// and replies go to "<procedure>.result" or the reply_to metadata key.
//
// # Middleware
//
// The bus RPC router runs the default chain: correlation id, message logging,
// OpenTelemetry tracing, Prometheus metrics, retry with backoff, poison queue
// forwarding and panic recovery. Custom middleware goes in
// ServiceDependencies.Middlewares.
//
// # Call hooks
//
// CallHooks provides OnCallStart, OnCallDone and OnCallError callbacks around
// every procedure call regardless of transport.
package crudflow
