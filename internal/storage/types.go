package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// Path is a directory for "file" and a database file for "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// redis
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is the pin ledger. Records are keyed by task identity, overwritten on
// every pin and never deleted.
type Store interface {
	// LoadPin returns the last stored message id for task. ok is false when
	// no record exists; that is not an error.
	LoadPin(ctx context.Context, task string) (id string, ok bool, err error)
	StorePin(ctx context.Context, task, messageID string) error
	Close() error
}
