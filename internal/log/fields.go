package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldGroupID    = "group_id"
	FieldCurrency   = "currency"
	FieldEventID    = "event_id"
	FieldEventType  = "type"
	FieldSequence   = "sequence"
	FieldVersion    = "version"
	FieldDriftCells = "drift_cells"
	FieldEventCount = "events"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentReconcile = "reconcile"
	ComponentWorker    = "worker"
)
