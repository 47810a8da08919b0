package account

import (
	"context"
	"sync"
	"time"

	"facecards/internal/models"
)

// MemoryStore keeps accounts in process memory. It enforces the same
// telegram_id uniqueness as the postgres schema.
type MemoryStore struct {
	mu           sync.RWMutex
	byID         map[int64]*models.Account
	byTelegramID map[string]int64
	nextID       int64
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:         make(map[int64]*models.Account),
		byTelegramID: make(map[string]int64),
		now:          time.Now,
	}
}

func (s *MemoryStore) GetAccountByTelegramID(_ context.Context, telegramID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byTelegramID[telegramID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	acc := *s.byID[id]
	return &acc, nil
}

func (s *MemoryStore) GetAccountByID(_ context.Context, id int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	acc := *stored
	return &acc, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTelegramID[acc.TelegramID]; exists {
		return ErrAccountExists
	}

	s.nextID++
	now := s.now().UTC()
	acc.ID = s.nextID
	acc.CreatedAt = now
	acc.UpdatedAt = now

	stored := *acc
	s.byID[acc.ID] = &stored
	s.byTelegramID[acc.TelegramID] = acc.ID
	return nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[acc.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if existing.TelegramID != acc.TelegramID {
		if _, taken := s.byTelegramID[acc.TelegramID]; taken {
			return ErrAccountExists
		}
		delete(s.byTelegramID, existing.TelegramID)
		s.byTelegramID[acc.TelegramID] = acc.ID
	}

	acc.CreatedAt = existing.CreatedAt
	acc.UpdatedAt = s.now().UTC()
	stored := *acc
	s.byID[acc.ID] = &stored
	return nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
