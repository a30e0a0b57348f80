package cdp

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("cdp connection closed")
	ErrInvalidResponse = errors.New("cdp invalid response")
)

// RemoteError is a protocol-level error returned by the browser for a command.
type RemoteError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// IsRemoteError reports whether err carries a protocol-level error from the
// browser, as opposed to a transport failure.
func IsRemoteError(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
