package user

import (
	"context"

	"facecards/internal/models"
)

type contextKey string

const accountContextKey contextKey = "account"

func SetAccountContext(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acc)
}

func GetAccountFromContext(ctx context.Context) *models.Account {
	if acc, ok := ctx.Value(accountContextKey).(*models.Account); ok {
		return acc
	}
	return nil
}
