package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spendly/internal/amqp"
	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/store"
)

const notifyTimeout = 5 * time.Second

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
	Close() error
}

// ExpenseService saves through the store first and then notifies listeners
// without waiting for them.
type ExpenseService struct {
	store     *store.Store
	publisher EventPublisher
	logger    *log.Logger
	wg        sync.WaitGroup
}

// NewExpenseService accepts a nil publisher; notifications are then skipped.
func NewExpenseService(st *store.Store, publisher EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		store:     st,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
	}
}

func (s *ExpenseService) Store() *store.Store { return s.store }

// CreateExpense adds e to the store. A persistence failure is returned but the
// record remains visible for the session, so the event is still sent.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) error {
	err := s.store.Add(ctx, e)
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return fmt.Errorf("save expense: %w", err)
	}
	s.notify(ctx, amqp.NewExpenseCreated(e))
	return err
}

// DeleteExpense removes id. Unknown ids report false without error. As with
// CreateExpense, a removal that could not be saved is still announced.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.Remove(ctx, id)
	if removed {
		s.notify(ctx, amqp.NewExpenseDeleted(id))
	}
	return removed, err
}

func (s *ExpenseService) notify(ctx context.Context, ev *amqp.ExpenseEvent) {
	if s.publisher == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.publisher.PublishExpenseEvent(pctx, ev); err != nil {
			s.logger.DebugContext(pctx, "Expense notification dropped",
				log.FieldExpenseID, ev.ID,
				log.FieldRoutingKey, ev.Type,
				log.FieldError, err)
		}
	}()
}

// Close waits for in-flight notifications and closes the publisher.
func (s *ExpenseService) Close() error {
	s.wg.Wait()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
