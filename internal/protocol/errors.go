package protocol

// Failure codes carried in harvest_result and surfaced to the presentation
// layer. Kept coarse so the client can render a specific transient message
// without parsing free-form text.
const (
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrOutOfRange    = "E_OUT_OF_RANGE"
	ErrConflict      = "E_CONFLICT"
	ErrTimeout       = "E_TIMEOUT"
	ErrNotConnected  = "E_NOT_CONNECTED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrInvalidTarget: {},
	ErrOutOfRange:    {},
	ErrConflict:      {},
	ErrTimeout:       {},
	ErrNotConnected:  {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
