package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// UserSafeMessage returns a message that can be shown to API consumers.
// Internal errors are collapsed to a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotFound) {
		return "requested resource was not found"
	}
	return "an unexpected error occurred"
}
