// Package app is the application controller shared by the web and terminal
// front ends. It owns the modal lifecycle, the selected range and the copy
// confirmation state.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendly/internal/cache"
	"spendly/internal/core"
	"spendly/internal/form"
	"spendly/internal/log"
	"spendly/internal/services"
	"spendly/internal/store"
	"spendly/internal/view"
)

// CopyConfirmDuration is how long Copied reports true after a copy.
const CopyConfirmDuration = 2 * time.Second

var (
	ErrInvalidRange = errors.New("invalid range")
	ErrNoClipboard  = errors.New("clipboard unavailable")
)

// Clipboard matches github.com/atotto/clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// ClipboardFunc adapts a function to Clipboard.
type ClipboardFunc func(string) error

func (f ClipboardFunc) WriteAll(text string) error { return f(text) }

type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
)

func (m ModalState) String() string {
	if m == ModalOpen {
		return "open"
	}
	return "closed"
}

// FormState is what the entry modal renders.
type FormState struct {
	State  ModalState
	Input  form.Input
	Errors *form.ValidationError
}

type Options struct {
	Clock  Clock
	Cache  *cache.Summaries
	NewID  func() string
	Logger *log.Logger
}

type App struct {
	svc    *services.ExpenseService
	store  *store.Store
	cache  *cache.Summaries
	clock  Clock
	newID  func() string
	logger *log.Logger

	initOnce sync.Once

	mu       sync.Mutex
	modal    ModalState
	draft    form.Input
	errs     *form.ValidationError
	rng      core.Range
	copiedAt time.Time
}

func New(svc *services.ExpenseService, opts Options) *App {
	a := &App{
		svc:    svc,
		store:  svc.Store(),
		cache:  opts.Cache,
		clock:  opts.Clock,
		newID:  opts.NewID,
		logger: opts.Logger,
	}
	if a.clock == nil {
		a.clock = SystemClock{}
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	if a.logger == nil {
		a.logger = log.Discard()
	}
	a.logger = a.logger.WithComponent(log.ComponentApp)
	return a
}

// Init hydrates the store once. Later calls are no-ops.
func (a *App) Init(ctx context.Context) {
	a.initOnce.Do(func() {
		items := a.store.Load(ctx)
		a.logger.InfoContext(ctx, "Expenses hydrated", log.FieldCount, len(items))
	})
}

// Today is the current calendar day per the app clock.
func (a *App) Today() core.Date {
	return core.DateOf(a.clock.Now())
}

// OpenForm opens the modal with today's date and the last used category.
func (a *App) OpenForm(ctx context.Context) FormState {
	last := a.store.LastCategory(ctx)
	if !core.IsKnownCategory(last) {
		last = ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.modal = ModalOpen
	a.draft = form.Input{Date: a.Today().String(), Category: last}
	a.errs = nil
	return a.formLocked()
}

// CancelForm closes the modal and discards the draft.
func (a *App) CancelForm() FormState {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modal = ModalClosed
	a.draft = form.Input{}
	a.errs = nil
	return a.formLocked()
}

func (a *App) Form() FormState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.formLocked()
}

func (a *App) formLocked() FormState {
	return FormState{State: a.modal, Input: a.draft, Errors: a.errs}
}

// Submit validates in and records it. On a validation failure the modal stays
// open with the draft and its messages. On success the draft is cleared and
// the modal closes.
//
// A failed save still keeps the record for the session: the expense and the
// closed form are returned together with the store.ErrPersist-wrapped error,
// and the caller decides how loudly to report it.
func (a *App) Submit(ctx context.Context, in form.Input) (core.Expense, FormState, error) {
	e, err := form.Build(in, a.newID)
	if err != nil {
		var verr *form.ValidationError
		a.mu.Lock()
		defer a.mu.Unlock()
		a.modal = ModalOpen
		a.draft = in
		if errors.As(err, &verr) {
			a.errs = verr
		}
		return core.Expense{}, a.formLocked(), err
	}

	saveErr := a.svc.CreateExpense(ctx, e)
	if saveErr != nil {
		if !errors.Is(saveErr, store.ErrPersist) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.modal = ModalOpen
			a.draft = in
			return core.Expense{}, a.formLocked(), saveErr
		}
		a.logger.WarnContext(ctx, "Expense kept in memory only", log.FieldExpenseID, e.ID, log.FieldError, saveErr)
	}
	if err := a.store.SetLastCategory(ctx, e.Category); err != nil {
		a.logger.WarnContext(ctx, "Cannot remember last category", log.FieldError, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.modal = ModalClosed
	a.draft = form.Input{}
	a.errs = nil
	return e, a.formLocked(), saveErr
}

// ParseRange parses optional YYYY-MM-DD bounds. Empty strings leave a bound
// absent.
func ParseRange(start, end string) (core.Range, error) {
	var r core.Range
	if s := strings.TrimSpace(start); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return core.Range{}, fmt.Errorf("%w: start: %w", ErrInvalidRange, err)
		}
		r.Start = d
	}
	if s := strings.TrimSpace(end); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return core.Range{}, fmt.Errorf("%w: end: %w", ErrInvalidRange, err)
		}
		r.End = d
	}
	return r, nil
}

// SetRange replaces the selected range. On error the range is unchanged.
func (a *App) SetRange(start, end string) (core.Range, error) {
	r, err := ParseRange(start, end)
	if err != nil {
		return a.Range(), err
	}
	a.mu.Lock()
	a.rng = r
	a.mu.Unlock()
	return r, nil
}

func (a *App) Range() core.Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng
}

// Summary summarizes the selected range.
func (a *App) Summary() core.Summary {
	return a.SummaryFor(a.Range())
}

// SummaryFor summarizes r without touching the selected range.
func (a *App) SummaryFor(r core.Range) core.Summary {
	compute := func() core.Summary { return core.Summarize(a.store.All(), r) }
	if a.cache == nil {
		return compute()
	}
	return a.cache.Get(r, a.store.Revision(), compute)
}

// CacheStats reports summary cache hits and misses. Both are zero when no
// cache is configured.
func (a *App) CacheStats() (hits, misses int64) {
	if a.cache == nil {
		return 0, 0
	}
	return a.cache.Stats()
}

// Delete removes id only when confirmed. An unconfirmed delete changes
// nothing and is not an error. Like Submit, a failed save keeps the removal
// for the session and reports true with the store.ErrPersist-wrapped error.
func (a *App) Delete(ctx context.Context, id string, confirmed bool) (bool, error) {
	if !confirmed {
		a.logger.DebugContext(ctx, "Delete not confirmed", log.FieldExpenseID, id)
		return false, nil
	}
	removed, err := a.svc.DeleteExpense(ctx, id)
	if err != nil && removed && errors.Is(err, store.ErrPersist) {
		a.logger.WarnContext(ctx, "Removal kept in memory only", log.FieldExpenseID, id, log.FieldError, err)
	}
	return removed, err
}

// Digest is the copy-all text for r.
func (a *App) Digest(r core.Range) string {
	return view.Digest(a.SummaryFor(r).Groups)
}

// CopyAll writes the digest of the selected range to clip and starts the copy
// confirmation. Clipboard failures are returned for the caller to surface.
func (a *App) CopyAll(ctx context.Context, clip Clipboard) (string, error) {
	text := a.Digest(a.Range())
	if clip == nil {
		return "", ErrNoClipboard
	}
	if err := clip.WriteAll(text); err != nil {
		a.logger.WarnContext(ctx, "Copy failed", log.FieldOperation, log.OpCopy, log.FieldError, err)
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	a.mu.Lock()
	a.copiedAt = a.clock.Now()
	a.mu.Unlock()
	return text, nil
}

// Copied reports whether the last successful copy is still being confirmed.
func (a *App) Copied() bool {
	a.mu.Lock()
	at := a.copiedAt
	a.mu.Unlock()
	return !at.IsZero() && a.clock.Now().Sub(at) < CopyConfirmDuration
}

func (a *App) Close() error {
	return a.svc.Close()
}
