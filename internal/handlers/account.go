package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/handlers/render"
	"github.com/atriumhq/atrium/internal/logger"
	"github.com/atriumhq/atrium/internal/models"
)

type AccountResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Verified    bool       `json:"verified"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func accountResponse(a models.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Verified:    a.Verified(),
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

func handleRegister(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Name     string `json:"name" validate:"required,min=2,max=100"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tokens, err := accounts.Register(r.Context(), data.Email, data.Name, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAccountExists):
				render.ServiceError(w, "Account already exists", http.StatusConflict)
			default:
				l.Error("register failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, tokens, http.StatusCreated)
	})
}

func handleAccountMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, accountResponse(account))
	})
}

func handleAccountUpdate(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Name string `json:"name" validate:"required,min=2,max=100"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		updated, err := accounts.UpdateName(r.Context(), account.ID, data.Name)
		if err != nil {
			l.Error("account update failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, accountResponse(updated))
	})
}

func handleVerify(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Code string `json:"code" validate:"required,len=32"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tokens, err := accounts.Verify(r.Context(), data.Code)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAlreadyVerified):
				render.ServiceError(w, "Account is already verified", http.StatusConflict)
			case isTokenError(err):
				renderTokenError(w, err)
			default:
				l.Error("account verify failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokens)
	})
}

func handleVerifyResend(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		info, err := accounts.VerifyResend(r.Context(), data.Email)
		if err != nil {
			if throttle, ok := apperrors.AsThrottle(err); ok {
				render.ThrottleError(w, throttle.Wait)
				return
			}
			switch {
			case errors.Is(err, apperrors.ErrAccountNotFound):
				render.ServiceError(w, "Account not found", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrAlreadyVerified):
				render.ServiceError(w, "Account is already verified", http.StatusConflict)
			default:
				l.Error("verify resend failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, info)
	})
}
