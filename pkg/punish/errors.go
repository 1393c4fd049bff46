package punish

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a command did not take effect.
type ErrorKind int

const (
	KindUsage        ErrorKind = iota + 1 // bad or missing arguments
	KindAuthority                         // issuer lacks rank or capability
	KindResolution                        // target identity or record not found
	KindStorage                           // record store failed or timed out
	KindNotification                      // sink failed; logged only
)

func (k ErrorKind) String() string {
	switch k {
	case KindUsage:
		return "USAGE"
	case KindAuthority:
		return "AUTHORITY"
	case KindResolution:
		return "RESOLUTION"
	case KindStorage:
		return "STORAGE"
	case KindNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// Error is the engine's error type. Message is safe to show to the issuer;
// Cause is for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Fixed user-facing messages.
const (
	msgNoPermission = "No permission."
	msgHigherRank   = "You cannot punish this player (higher rank)."
	msgUnverifiable = "You cannot punish this player (rank could not be verified while offline)."
	msgNotFound     = "Player not found."
	msgNotOnline    = "Player not online."
	msgStorage      = "The moderation database is unavailable, nothing was changed. Please try again."
	msgBusy         = "The server is busy, nothing was changed. Please try again."
)

func Usage(msg string) *Error { return &Error{Kind: KindUsage, Message: msg} }

func Authority(msg string) *Error { return &Error{Kind: KindAuthority, Message: msg} }

func Resolution(msg string) *Error { return &Error{Kind: KindResolution, Message: msg} }

func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Message: msgStorage, Cause: cause}
}

func Notification(cause error) *Error {
	return &Error{Kind: KindNotification, Message: "notification failed", Cause: cause}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// UserText returns what the issuer sees for err. Causes are never included.
func UserText(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return msgStorage
}
