package cmdline

// Exit codes returned to the client for every executed command. Negative
// values between -60 and -63 are also used as frame codes in the petition
// protocol.
const (
	ExitOK           = 0
	ExitConfirmNo    = -12
	ExitArgs         = -51
	ExitInvalidEmail = -52
	ExitNotFound     = -53
	ExitInvalidState = -54
	ExitInvalidType  = -55
	ExitNotPermitted = -56
	ExitNotLoggedIn  = -57
	ExitNoFetch      = -58
	ExitUnexpected   = -59
	ExitReqConfirm   = -60
	ExitReqString    = -61
	ExitPartialOut   = -62
	ExitPartialErr   = -63
	ExitExists       = -64
	ExitReqRestart   = -71
)

func ErrorString(code int) string {
	switch code {
	case ExitOK:
		return "Everything OK"
	case ExitConfirmNo:
		return "Confirmation denied"
	case ExitArgs:
		return "Wrong arguments"
	case ExitInvalidEmail:
		return "Invalid email"
	case ExitNotFound:
		return "Resource not found"
	case ExitInvalidState:
		return "Invalid state"
	case ExitInvalidType:
		return "Invalid type"
	case ExitNotPermitted:
		return "Operation not allowed"
	case ExitNotLoggedIn:
		return "Needs logging in"
	case ExitNoFetch:
		return "Nodes not fetched"
	case ExitUnexpected:
		return "Unexpected failure"
	case ExitReqConfirm:
		return "Confirmation required"
	case ExitReqString:
		return "String required"
	case ExitExists:
		return "Resource already exists"
	case ExitReqRestart:
		return "Restart required"
	}
	return "UNKNOWN"
}
