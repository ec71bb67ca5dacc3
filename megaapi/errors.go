package megaapi

import (
	"errors"
	"fmt"
)

// ErrorCode is the result of an SDK request. The zero value means success.
type ErrorCode int

const (
	OK                  ErrorCode = 0
	EINTERNAL           ErrorCode = -1
	EARGS               ErrorCode = -2
	EAGAIN              ErrorCode = -3
	ERATELIMIT          ErrorCode = -4
	EFAILED             ErrorCode = -5
	ETOOMANY            ErrorCode = -6
	ERANGE              ErrorCode = -7
	EEXPIRED            ErrorCode = -8
	ENOENT              ErrorCode = -9
	ECIRCULAR           ErrorCode = -10
	EACCESS             ErrorCode = -11
	EEXIST              ErrorCode = -12
	EINCOMPLETE         ErrorCode = -13
	EKEY                ErrorCode = -14
	ESID                ErrorCode = -15
	EBLOCKED            ErrorCode = -16
	EOVERQUOTA          ErrorCode = -17
	ETEMPUNAVAIL        ErrorCode = -18
	ETOOMANYCONNECTIONS ErrorCode = -19
	EWRITE              ErrorCode = -20
	EREAD               ErrorCode = -21
	EAPPKEY             ErrorCode = -22
	ESSL                ErrorCode = -23
	EGOINGOVERQUOTA     ErrorCode = -24
	EMFAREQUIRED        ErrorCode = -26
	EMASTERONLY         ErrorCode = -27
	EBUSINESSPASTDUE    ErrorCode = -28
	EPAYWALL            ErrorCode = -29
)

var errorStrings = map[ErrorCode]string{
	OK:                  "No error",
	EINTERNAL:           "Internal error",
	EARGS:               "Invalid argument",
	EAGAIN:              "Request failed, retrying",
	ERATELIMIT:          "Rate limit exceeded",
	EFAILED:             "Failed permanently",
	ETOOMANY:            "Too many concurrent connections or transfers",
	ERANGE:              "Out of range",
	EEXPIRED:            "Expired",
	ENOENT:              "Not found",
	ECIRCULAR:           "Circular linkage detected",
	EACCESS:             "Access denied",
	EEXIST:              "Already exists",
	EINCOMPLETE:         "Incomplete",
	EKEY:                "Invalid key/Decryption error",
	ESID:                "Bad session ID",
	EBLOCKED:            "Blocked",
	EOVERQUOTA:          "Over quota",
	ETEMPUNAVAIL:        "Temporarily not available",
	ETOOMANYCONNECTIONS: "Connection overflow",
	EWRITE:              "Write error",
	EREAD:               "Read error",
	EAPPKEY:             "Invalid application key",
	ESSL:                "SSL verification failed",
	EGOINGOVERQUOTA:     "Not enough quota",
	EMFAREQUIRED:        "Multi-factor authentication required",
	EMASTERONLY:         "Access denied for sub-users",
	EBUSINESSPASTDUE:    "Business account has expired",
	EPAYWALL:            "Storage Quota Exceeded. Upgrade now",
}

func (e ErrorCode) Error() string {
	if s, ok := errorStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown error (%d)", int(e))
}

// Code extracts the ErrorCode carried by err. A nil error is OK and an error
// that carries no code is EINTERNAL.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return EINTERNAL
}
