package account

import (
	"context"
	"errors"
	"fmt"

	"facecards/internal/initdata"
	"facecards/internal/metrics"
	"facecards/internal/models"

	"go.uber.org/zap"
)

// Listener is told about accounts created on first sign-in. Errors are
// logged by the coordinator and never fail the login.
type Listener interface {
	AccountCreated(ctx context.Context, acc *models.Account) error
}

// Coordinator resolves a verified identity to exactly one account.
type Coordinator struct {
	store     Store
	locker    Locker
	logger    *zap.Logger
	metrics   *metrics.Metrics
	listeners []Listener
}

type CoordinatorOption func(*Coordinator)

func WithLocker(l Locker) CoordinatorOption {
	return func(c *Coordinator) { c.locker = l }
}

func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func WithListeners(ls ...Listener) CoordinatorOption {
	return func(c *Coordinator) { c.listeners = append(c.listeners, ls...) }
}

func NewCoordinator(store Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:  store,
		locker: NewLocalLocker(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert returns the account for identity, creating it on first sight. The
// boolean is true only for the call that inserted the row.
func (c *Coordinator) Upsert(ctx context.Context, identity *initdata.Identity) (*models.Account, bool, error) {
	log := c.logger.With(zap.String("telegram_id", identity.TelegramID))

	acc, created, err := c.resolve(ctx, identity, log)
	if err != nil || !created {
		return acc, false, err
	}

	// Listeners run outside the lock.
	for _, l := range c.listeners {
		if err := l.AccountCreated(ctx, acc); err != nil {
			log.Warn("Account listener failed",
				zap.String("listener", fmt.Sprintf("%T", l)),
				zap.Error(err))
		}
	}

	return acc, true, nil
}

// resolve reads or inserts the account while holding the per-id lock.
func (c *Coordinator) resolve(ctx context.Context, identity *initdata.Identity, log *zap.Logger) (*models.Account, bool, error) {
	unlock, err := c.locker.Lock(ctx, "account:"+identity.TelegramID)
	if err != nil {
		log.Error("Failed to acquire upsert lock", zap.Error(err))
		return nil, false, fmt.Errorf("%w: lock: %v", ErrStorage, err)
	}
	defer unlock()

	existing, err := c.store.GetAccountByTelegramID(ctx, identity.TelegramID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrAccountNotFound):
		log.Error("Failed to look up account", zap.Error(err))
		return nil, false, storageError(err)
	}

	acc := newAccount(identity)
	if err := c.store.CreateAccount(ctx, acc); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			log.Error("Failed to create account", zap.Error(err))
			return nil, false, storageError(err)
		}

		c.metrics.UpsertConflict()
		log.Info("Account created concurrently, re-reading")
		winner, err := c.store.GetAccountByTelegramID(ctx, identity.TelegramID)
		if err != nil {
			log.Error("Failed to re-read account after conflict", zap.Error(err))
			return nil, false, storageError(err)
		}
		return winner, false, nil
	}

	c.metrics.AccountCreated()
	log.Info("Account created", zap.Int64("account_id", acc.ID))
	return acc, true, nil
}

func newAccount(identity *initdata.Identity) *models.Account {
	return &models.Account{
		TelegramID:   identity.TelegramID,
		Username:     identity.Username,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		LanguageCode: identity.LanguageCode,
		AvatarURL:    identity.PhotoURL,
		IsPremium:    identity.IsPremium,
	}
}

func storageError(err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
