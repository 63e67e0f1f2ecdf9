package metadata

// Reserved metadata keys carried on events and bus RPC messages.
const (
	// KeyCorrelationID ties a bus RPC reply to its request.
	KeyCorrelationID = "correlation_id"

	// KeyProcedure names the procedure a bus RPC message targets.
	KeyProcedure = "crudflow_procedure"

	// KeyCollection names the collection a change event belongs to.
	KeyCollection = "crudflow_collection"

	// KeyReplyTo overrides the topic a bus RPC reply is published on.
	KeyReplyTo = "reply_to"

	// KeyTraceID stores the distributed tracing id.
	KeyTraceID = "trace_id"
)
