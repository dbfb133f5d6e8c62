package engine

// Outcome classifies one execution of a context.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeError
	OutcomeTimeout
	OutcomeOutOfMemory
	OutcomePermissionDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeOutOfMemory:
		return "out_of_memory"
	case OutcomePermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}
