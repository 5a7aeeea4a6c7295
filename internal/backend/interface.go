// Package backend builds the ledger store and the optional template-change
// publisher selected by configuration.
package backend

import (
	"context"

	"paycal/internal/ledger"
	"paycal/internal/services"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Result is a ready-to-use backend. Publisher is nil unless expansion runs
// asynchronously and the broker was reachable.
type Result struct {
	Store     ledger.Store
	Publisher services.EventPublisher
	// Ready reports whether the store can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Publisher, used only when Async is set
	Async        bool
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type names a storage backend.
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory:
		return true
	default:
		return false
	}
}
