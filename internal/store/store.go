// Package store holds the in-memory expense collection and mirrors every
// mutation into a storage.Backend as a full JSON snapshot.
//
// Several processes may share one backend (the web server and the CLI), so a
// mutation re-reads the snapshot before applying its change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/storage"
)

// Storage keys. Values are not versioned.
const (
	KeyExpenses     = "expenses"
	KeyLastCategory = "lastCategory"
)

var (
	ErrDuplicateID = errors.New("duplicate expense id")
	ErrPersist     = errors.New("persist snapshot")
)

type Store struct {
	backend storage.Backend
	logger  *log.Logger

	mu       sync.RWMutex
	items    []core.Expense
	revision uint64
	// unparsed holds snapshot records that did not decode. They are written
	// back untouched.
	unparsed []json.RawMessage
	// dirty is set while the collection holds changes the backend has not
	// accepted; the snapshot is not re-read over them.
	dirty bool
}

func New(backend storage.Backend, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Store{
		backend: backend,
		logger:  logger.WithComponent(log.ComponentStore),
		items:   []core.Expense{},
	}
}

// Load replaces the collection with the persisted snapshot. A missing,
// unreadable or malformed snapshot yields an empty collection. Records that
// fail to decode are skipped and kept aside.
func (s *Store) Load(ctx context.Context) []core.Expense {
	items, unparsed, err := s.readSnapshot(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Cannot read expense snapshot, starting empty",
			log.FieldError, err, log.FieldOperation, log.OpRead)
	}

	s.mu.Lock()
	s.items = items
	s.unparsed = unparsed
	s.dirty = false
	s.revision++
	out := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Expenses loaded", log.FieldCount, len(out))
	return out
}

// readSnapshot returns an error only when the backend itself fails.
func (s *Store) readSnapshot(ctx context.Context) ([]core.Expense, []json.RawMessage, error) {
	blob, ok, err := s.backend.Load(ctx, KeyExpenses)
	if err != nil {
		return []core.Expense{}, nil, err
	}
	if !ok || len(strings.TrimSpace(string(blob))) == 0 {
		return []core.Expense{}, nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		s.logger.WarnContext(ctx, "Malformed expense snapshot, starting empty",
			log.FieldError, err, log.FieldOperation, log.OpParse)
		return []core.Expense{}, nil, nil
	}

	items := make([]core.Expense, 0, len(raw))
	var unparsed []json.RawMessage
	for i, r := range raw {
		var e core.Expense
		if err := json.Unmarshal(r, &e); err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed expense record",
				"index", i, log.FieldError, err, log.FieldOperation, log.OpParse)
			unparsed = append(unparsed, r)
			continue
		}
		items = append(items, e)
	}
	return items, unparsed, nil
}

// syncLocked picks up writes made through the backend by other processes.
// Unsaved local changes win, and a failed read keeps what is in memory.
func (s *Store) syncLocked(ctx context.Context) {
	if s.dirty {
		return
	}
	items, unparsed, err := s.readSnapshot(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Cannot refresh expense snapshot",
			log.FieldError, err, log.FieldOperation, log.OpRead)
		return
	}
	if sameRecords(s.items, items) && len(s.unparsed) == len(unparsed) {
		return
	}
	s.items = items
	s.unparsed = unparsed
	s.revision++
}

func sameRecords(a, b []core.Expense) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Amount != y.Amount || x.Category != y.Category ||
			x.Note != y.Note || x.Date.Compare(y.Date) != 0 {
			return false
		}
	}
	return true
}

// All returns a copy of the collection in insertion order.
func (s *Store) All() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Revision increases on every change of the collection.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Add appends e and persists the collection. When persisting fails the
// record stays in memory and an ErrPersist-wrapped error is returned.
func (s *Store) Add(ctx context.Context, e core.Expense) error {
	if strings.TrimSpace(e.ID) == "" {
		return core.ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked(ctx)

	for _, it := range s.items {
		if it.ID == e.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
	}
	s.items = append(s.items, e)
	s.revision++

	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Expense added",
		log.FieldOperation, log.OpCreate,
		log.FieldExpenseID, e.ID,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldCategory, e.Category)
	return nil
}

// Remove deletes the record with id. An unknown id is a no-op and nothing is
// written.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked(ctx)

	idx := -1
	for i, it := range s.items {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	next := make([]core.Expense, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)
	s.items = next
	s.revision++

	if err := s.persistLocked(ctx); err != nil {
		return true, err
	}
	s.logger.InfoContext(ctx, "Expense removed", log.FieldOperation, log.OpDelete, log.FieldExpenseID, id)
	return true, nil
}

// LastCategory returns the last category used for a new entry, or "".
func (s *Store) LastCategory(ctx context.Context) string {
	blob, ok, err := s.backend.Load(ctx, KeyLastCategory)
	if err != nil {
		s.logger.WarnContext(ctx, "Cannot read last category", log.FieldError, err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(blob))
}

func (s *Store) SetLastCategory(ctx context.Context, id string) error {
	if err := s.backend.Save(ctx, KeyLastCategory, []byte(id)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	records := make([]any, 0, len(s.items)+len(s.unparsed))
	for _, e := range s.items {
		records = append(records, e)
	}
	for _, r := range s.unparsed {
		records = append(records, r)
	}
	blob, err := json.Marshal(records)
	if err != nil {
		s.dirty = true
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.backend.Save(ctx, KeyExpenses, blob); err != nil {
		s.dirty = true
		s.logger.ErrorContext(ctx, "Failed to persist expenses", log.FieldError, err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.dirty = false
	return nil
}

func (s *Store) snapshotLocked() []core.Expense {
	return append([]core.Expense{}, s.items...)
}
