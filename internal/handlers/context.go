package handlers

import (
	"context"

	"github.com/atriumhq/atrium/internal/handlers/accountctx"
	"github.com/atriumhq/atrium/internal/models"
)

func NewContextWithAccount(ctx context.Context, a models.Account) context.Context {
	return accountctx.New(ctx, a)
}

func AccountFromContext(ctx context.Context) (models.Account, bool) {
	return accountctx.FromContext(ctx)
}
