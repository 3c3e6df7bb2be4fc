package core

import (
	"context"
	"net"
)

// ConnectionHandler owns one client connection from accept to close.
// It returns nil when the peer ended the session (bye or EOF) and an
// error wrapping ErrTransport when the session failed.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn) error
}

// Persister writes the current ranking to durable storage.
// The server calls it once after every finished session.
type Persister interface {
	Persist(ctx context.Context) error
}

// LedgerStore defines where the flat ranking file lives.
// It abstracts away the storage mechanism (file, ConfigMap, Redis, SQLite, ...).
// Load returns an error satisfying errors.Is(err, os.ErrNotExist) when
// nothing has been saved yet.
type LedgerStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Name() string
}
