// Package scoreboard binds the in-memory ledger to its durable store.
package scoreboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
)

// Service implements core.Persister.
type Service struct {
	Ledger *ledger.Ledger
	Store  core.LedgerStore

	saveMu sync.Mutex
}

func NewService(l *ledger.Ledger, store core.LedgerStore) *Service {
	return &Service{Ledger: l, Store: store}
}

// Load fills the ledger from the store. A missing ranking is an empty
// ledger; an unreadable one is logged and also leaves the ledger empty.
// The returned error is only informational.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.Store.Load(ctx)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No saved scores, starting empty", "store", s.Store.Name())
		return nil
	}
	if err != nil {
		logger.Error("Failed to load scores, starting empty", "store", s.Store.Name(), "error", err)
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	warnings, err := s.Ledger.Load(bytes.NewReader(data))
	for _, w := range warnings {
		logger.Warn("Problem parsing saved score", "store", s.Store.Name(), "error", w)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	logger.Info("Scores loaded", "store", s.Store.Name(), "entries", s.Ledger.Len(), "skipped", len(warnings))
	return nil
}

// Persist overwrites the stored ranking with the current one. Saves are
// serialised so two sessions ending together never interleave writes.
func (s *Service) Persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	var buf bytes.Buffer
	if err := s.Ledger.Persist(&buf); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	if err := s.Store.Save(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	logger.Debug("Scores saved", "store", s.Store.Name(), "entries", s.Ledger.Len())
	return nil
}
