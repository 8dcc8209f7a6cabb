package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried through the call chain in the context logger.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldContextID is the import context ID
	FieldContextID = "context_id"

	// FieldTaskID is the task ID within an import context
	FieldTaskID = "task_id"

	// FieldItemID is the item ID within a task
	FieldItemID = "item_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, attached per entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
)
