package middleware

import (
	"context"
	"net/http"

	"github.com/atriumhq/atrium/internal/handlers/accountctx"
	"github.com/atriumhq/atrium/internal/handlers/render"
	"github.com/atriumhq/atrium/internal/models"
)

type authService interface {
	AccountFromRequest(ctx context.Context, r *http.Request) (models.Account, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := as.AccountFromRequest(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := accountctx.New(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
