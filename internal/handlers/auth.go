package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/apperrors"
	"github.com/atriumhq/atrium/internal/handlers/render"
	"github.com/atriumhq/atrium/internal/logger"
)

func isTokenError(err error) bool {
	return errors.Is(err, apperrors.ErrTokenNotFound) ||
		errors.Is(err, apperrors.ErrTokenUsed) ||
		errors.Is(err, apperrors.ErrTokenInvalidated) ||
		errors.Is(err, apperrors.ErrTokenExpired)
}

// renderTokenError maps usable-token failures to 401. The message
// distinguishes the reasons: a used token on refresh means the client
// should re-authenticate, not retry.
func renderTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenUsed):
		render.ServiceError(w, "Token has already been used", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenInvalidated):
		render.ServiceError(w, "Token has been invalidated", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.ServiceError(w, "Token has expired", http.StatusUnauthorized)
	default:
		render.ServiceError(w, "Token not found", http.StatusUnauthorized)
	}
}

func handleLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tokens, err := auth.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokens)
	})
}

func handlePasswordChange(auth authService, l logger.Logger) http.Handler {
	type request struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
	}
	type response struct {
		Message string `json:"message"`
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

		err = auth.ChangePassword(r.Context(), account.ID, data.OldPassword, data.NewPassword)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrWrongOldPassword):
				render.ServiceError(w, "Incorrect old password", http.StatusBadRequest)
			case errors.Is(err, apperrors.ErrPasswordReused):
				render.ServiceError(w, "New password cannot match the old one", http.StatusConflict)
			case errors.Is(err, apperrors.ErrPasswordEmpty):
				render.ServiceError(w, "Password cannot be empty", http.StatusBadRequest)
			default:
				l.Error("password change failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{Message: "Password changed successfully"})
	})
}

func handlePasswordForget(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		info, err := accounts.ForgotPassword(r.Context(), data.Email)
		if err != nil {
			if throttle, ok := apperrors.AsThrottle(err); ok {
				render.ThrottleError(w, throttle.Wait)
				return
			}
			l.Error("password forget failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, info)
	})
}

func handlePasswordReset(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		Code     string `json:"code" validate:"required,len=32"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = accounts.ResetPassword(r.Context(), data.Code, data.Password)
		if err != nil {
			switch {
			case isTokenError(err):
				renderTokenError(w, err)
			case errors.Is(err, apperrors.ErrPasswordReused):
				render.ServiceError(w, "New password cannot match the old one", http.StatusConflict)
			case errors.Is(err, apperrors.ErrPasswordEmpty):
				render.ServiceError(w, "Password cannot be empty", http.StatusBadRequest)
			default:
				l.Error("password reset failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{Message: "Password reset successfully"})
	})
}

func handleTokenRefresh(auth authService, l logger.Logger) http.Handler {
	type request struct {
		AccountID    uuid.UUID `json:"accountId" validate:"required"`
		RefreshToken string    `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tokens, err := auth.Refresh(r.Context(), data.AccountID, data.RefreshToken)
		if err != nil {
			switch {
			case isTokenError(err):
				renderTokenError(w, err)
			default:
				l.Error("token refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, tokens)
	})
}

func handleTokenRevoke(auth authService, l logger.Logger) http.Handler {
	type request struct {
		AccountID    uuid.UUID `json:"accountId" validate:"required"`
		RefreshToken string    `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Revoke is idempotent, an unknown token still answers 204
		if err := auth.Revoke(r.Context(), data.AccountID, data.RefreshToken); err != nil {
			l.Error("token revoke failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
