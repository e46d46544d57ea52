package log

import "time"

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldCommand   = "command"
	FieldDuration  = "duration_ms"
	FieldSuccess   = "success"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldKind      = "kind"
	FieldRecordID  = "record_id"
	FieldAmount    = "amount"
	FieldType      = "type"
	FieldCategory  = "category"
	FieldWindow    = "window"
	FieldSource    = "source"
	FieldPath      = "path"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentBackup  = "backup"
	ComponentBackend = "backend"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithCommand(path string) LogFields {
	f[FieldCommand] = path
	return f
}

func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithRecord(kind string, id int64) LogFields {
	f[FieldKind] = kind
	f[FieldRecordID] = id
	return f
}

// WithError records err and sets success accordingly.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldSuccess] = false
	} else {
		f[FieldSuccess] = true
	}
	return f
}

// ToSlice flattens the fields into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	out := make([]any, 0, len(f)*2)
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
