package account

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"facecards/internal/database"
	"facecards/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create then read", func(t *testing.T) {
		s := newStore(t)
		acc := &models.Account{TelegramID: uniqueTelegramID(), FirstName: "Alice", Username: strPtr("alice")}
		require.NoError(t, s.CreateAccount(ctx, acc))
		assert.NotZero(t, acc.ID)
		assert.False(t, acc.CreatedAt.IsZero())

		byTG, err := s.GetAccountByTelegramID(ctx, acc.TelegramID)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byTG.ID)
		assert.Equal(t, "alice", *byTG.Username)

		byID, err := s.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.TelegramID, byID.TelegramID)
	})

	t.Run("duplicate telegram id", func(t *testing.T) {
		s := newStore(t)
		tg := uniqueTelegramID()
		require.NoError(t, s.CreateAccount(ctx, &models.Account{TelegramID: tg}))
		err := s.CreateAccount(ctx, &models.Account{TelegramID: tg})
		assert.ErrorIs(t, err, ErrAccountExists)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAccountByTelegramID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = s.GetAccountByID(ctx, -1)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		err = s.UpdateAccount(ctx, &models.Account{ID: -1, TelegramID: "x"})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		acc := &models.Account{TelegramID: uniqueTelegramID(), FirstName: "Bob"}
		require.NoError(t, s.CreateAccount(ctx, acc))

		acc.Description = "likes cards"
		acc.BackgroundColor = "#ffeedd"
		acc.PremiumTier = 2
		require.NoError(t, s.UpdateAccount(ctx, acc))

		got, err := s.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "likes cards", got.Description)
		assert.Equal(t, "#ffeedd", got.BackgroundColor)
		assert.Equal(t, 2, got.PremiumTier)
	})
}

var telegramIDSeq = time.Now().UnixNano()

func uniqueTelegramID() string {
	telegramIDSeq++
	return fmt.Sprintf("%d", telegramIDSeq)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreShouldReturnCopies(t *testing.T) {
	s := NewMemoryStore()
	acc := &models.Account{TelegramID: "1", FirstName: "Alice"}
	require.NoError(t, s.CreateAccount(context.Background(), acc))

	acc.FirstName = "Mallory"
	got, err := s.GetAccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	storeContract(t, func(*testing.T) Store { return NewPostgresStore(db) })
}

func TestPostgresStoreShouldCreateOnceUnderConcurrency(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	c := NewCoordinator(NewPostgresStore(db), WithLocker(noLocker{}))
	identity := aliceIdentity()
	identity.TelegramID = uniqueTelegramID()

	results := make(chan bool, 8)
	for i := 0; i < cap(results); i++ {
		go func() {
			_, isNew, err := c.Upsert(context.Background(), identity)
			assert.NoError(t, err)
			results <- isNew
		}()
	}

	created := 0
	for i := 0; i < cap(results); i++ {
		if <-results {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countAccounts(t, db, identity.TelegramID))
}

func countAccounts(t *testing.T, db *sqlx.DB, telegramID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT count(*) FROM accounts WHERE telegram_id = $1`, telegramID))
	return n
}
