// Package status classifies the google.rpc.Code values the large-file
// remote's per-blob responses carry, adapted from the teacher's CAS status
// enum to give error messages a human-readable code name instead of a
// bare integer.
package status

// Code mirrors the subset of google.rpc.Code this module's remote
// large-file transfer actually encounters.
type Code int32

const (
	OK                 Code = 0
	Unknown            Code = 2
	DeadlineExceeded   Code = 4
	NotFound           Code = 5
	PermissionDenied   Code = 7
	ResourceExhausted  Code = 8
	FailedPrecondition Code = 9
	Aborted            Code = 10
	Internal           Code = 13
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "UNKNOWN"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case NotFound:
		return "NOT_FOUND"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Aborted:
		return "ABORTED"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN_CODE"
	}
}

// Status pairs a classified code with the server's message, mirroring the
// shape BatchReadBlobsResponse.Responses[i].Status carries.
type Status struct {
	Code    Code
	Message string
}

func (s Status) String() string {
	return s.Code.String() + ": " + s.Message
}
