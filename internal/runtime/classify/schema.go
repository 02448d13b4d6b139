package classify

// Event IDs of the PowerShell operational log.
const (
	EventScriptBlock      = 4104
	EventModuleLogging    = 4103
	EventScriptBlockStart = 4105
)

// FragmentSchema gives the payload positions of a script block fragment.
type FragmentSchema struct {
	EventID       int
	Sequence      int
	Total         int
	Content       int
	CorrelationID int
	SourceName    int
}

// ContextSchema gives the payload positions of a context record.
type ContextSchema struct {
	EventID       int
	ContextInfo   int
	CorrelationID int
}

// StartSchema gives the payload positions of an invocation start record. The
// start time is the record creation time.
type StartSchema struct {
	EventID       int
	CorrelationID int
}

// Schemas is the closed set of recognized record kinds.
type Schemas struct {
	Fragment FragmentSchema
	Context  ContextSchema
	Start    StartSchema
}

// DefaultSchemas returns the positions used by event IDs 4104, 4103 and 4105:
//
//	4104: MessageNumber, MessageTotal, ScriptBlockText, ScriptBlockId, Path
//	4103: ContextInfo, UserData, Payload, ScriptBlockId
//	4105: ScriptBlockId, RunspaceId
func DefaultSchemas() Schemas {
	return Schemas{
		Fragment: FragmentSchema{
			EventID:       EventScriptBlock,
			Sequence:      0,
			Total:         1,
			Content:       2,
			CorrelationID: 3,
			SourceName:    4,
		},
		Context: ContextSchema{
			EventID:       EventModuleLogging,
			ContextInfo:   0,
			CorrelationID: 3,
		},
		Start: StartSchema{
			EventID:       EventScriptBlockStart,
			CorrelationID: 0,
		},
	}
}
