package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports a channel or message that does not exist (or is not visible to the bot).
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized reports a rejected bot credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden reports an action the bot lacks the permission for.
	ErrForbidden = errors.New("forbidden")
)

// Platform is the messaging platform as seen by the scheduler.
type Platform interface {
	// Name is a short platform label for logs ("discord", "telegram").
	Name() string
	// ResolveChannel returns the channel with the given id or an error wrapping ErrNotFound.
	ResolveChannel(ctx context.Context, id string) (Channel, error)
	Close() error
}

// Channel is a destination that messages are posted into.
type Channel interface {
	ID() string
	Name() string
	// Kind is the platform's channel type label, for diagnostics only.
	Kind() string
	// SupportsThreadedMessaging reports whether messages can be sent, promoted to
	// threads and pinned in this channel.
	SupportsThreadedMessaging() bool

	SendMessage(ctx context.Context, text string) (Message, error)
	// FetchMessage returns an existing message or an error wrapping ErrNotFound.
	FetchMessage(ctx context.Context, id string) (Message, error)
}

// Message is a posted message.
type Message interface {
	ID() string
	StartThread(ctx context.Context, title string) (Thread, error)
	Pin(ctx context.Context) error
	// Unpin fails with an error wrapping ErrNotFound if the message no longer exists.
	Unpin(ctx context.Context) error
}

// Thread is the thread (or forum topic) created from a message.
type Thread struct {
	ID   string
	Name string
}

// IsNotFound reports whether err means the referenced entity is gone.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPermanent reports whether retrying the same call later cannot succeed
// without someone changing the bot's setup. Anything else counts as transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
