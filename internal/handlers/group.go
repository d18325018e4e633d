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
	"github.com/atriumhq/atrium/internal/service/group"
)

type GroupResponse struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatorID   uuid.UUID `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type GroupMemberResponse struct {
	AccountID uuid.UUID   `json:"accountId"`
	Role      string      `json:"role"`
	TagIDs    []uuid.UUID `json:"tagIds,omitempty"`
	JoinedAt  time.Time   `json:"joinedAt"`
}

func groupResponse(g models.Group) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		Slug:        g.Slug,
		Name:        g.Name,
		Description: g.Description,
		Color:       g.Color,
		CreatorID:   g.CreatorID,
		CreatedAt:   g.CreatedAt,
	}
}

func memberResponse(m models.GroupMember) GroupMemberResponse {
	return GroupMemberResponse{
		AccountID: m.AccountID,
		Role:      string(m.Role),
		TagIDs:    m.TagIDs,
		JoinedAt:  m.CreatedAt,
	}
}

func handleGroupCreate(groups groupService, l logger.Logger) http.Handler {
	type request struct {
		Slug        string `json:"slug" validate:"required,min=2,max=50"`
		Name        string `json:"name" validate:"required,min=2,max=100"`
		Description string `json:"description" validate:"max=1000"`
		Color       string `json:"color" validate:"omitempty,hexcolor"`
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

		created, err := groups.Create(r.Context(), account.ID, group.CreateGroupParams{
			Slug:        data.Slug,
			Name:        data.Name,
			Description: data.Description,
			Color:       data.Color,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrGroupSlugTaken):
				render.ServiceError(w, "Group slug already taken", http.StatusConflict)
			default:
				l.Error("group create failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, groupResponse(created), http.StatusCreated)
	})
}

func handleGroupList(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		list, err := groups.ListForAccount(r.Context(), account.ID)
		if err != nil {
			l.Error("group list failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]GroupResponse, 0, len(list))
		for _, g := range list {
			res = append(res, groupResponse(g))
		}
		render.JSON(w, res)
	})
}

func handleGroupGet(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		found, err := groups.Get(r.Context(), account.ID, r.PathValue("slug"))
		if err != nil {
			renderGroupError(w, l, err)
			return
		}

		render.JSON(w, groupResponse(found))
	})
}

func handleGroupMembers(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		members, err := groups.ListMembers(r.Context(), account.ID, r.PathValue("slug"))
		if err != nil {
			renderGroupError(w, l, err)
			return
		}

		res := make([]GroupMemberResponse, 0, len(members))
		for _, m := range members {
			res = append(res, memberResponse(m))
		}
		render.JSON(w, res)
	})
}

func handleMemberRemove(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		memberID, err := uuid.Parse(r.PathValue("accountId"))
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		err = groups.RemoveMember(r.Context(), account.ID, r.PathValue("slug"), memberID)
		if err != nil {
			renderGroupError(w, l, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleInvitationCreate(groups groupService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		ID        uuid.UUID `json:"id"`
		Email     string    `json:"email"`
		Status    string    `json:"status"`
		ExpiresAt time.Time `json:"expiresAt"`
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

		inv, err := groups.Invite(r.Context(), account.ID, r.PathValue("slug"), data.Email)
		if err != nil {
			renderGroupError(w, l, err)
			return
		}

		render.JSONWithStatus(w, response{
			ID:        inv.ID,
			Email:     inv.Email,
			Status:    string(inv.Status),
			ExpiresAt: inv.ExpiresAt,
		}, http.StatusCreated)
	})
}

func handleInvitationAccept(groups groupService, l logger.Logger) http.Handler {
	type request struct {
		Token string `json:"token" validate:"required"`
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

		member, err := groups.AcceptInvitation(r.Context(), account, data.Token)
		if err != nil {
			switch {
			case isTokenError(err):
				renderTokenError(w, err)
			case errors.Is(err, apperrors.ErrAlreadyMember):
				render.ServiceError(w, "Already a group member", http.StatusConflict)
			default:
				l.Error("invitation accept failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, memberResponse(member), http.StatusCreated)
	})
}

func handleInvitationRevoke(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		invitationID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid invitation id", http.StatusBadRequest)
			return
		}

		err = groups.RevokeInvitation(r.Context(), account.ID, r.PathValue("slug"), invitationID)
		if err != nil {
			switch {
			case isTokenError(err):
				render.ServiceError(w, "Invitation not found", http.StatusNotFound)
			default:
				renderGroupError(w, l, err)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleTagCreate(groups groupService, l logger.Logger) http.Handler {
	type request struct {
		Name string `json:"name" validate:"required,min=1,max=50"`
	}
	type response struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
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

		tag, err := groups.AddTag(r.Context(), account.ID, r.PathValue("slug"), data.Name)
		if err != nil {
			renderGroupError(w, l, err)
			return
		}

		render.JSONWithStatus(w, response{ID: tag.ID, Name: tag.Name}, http.StatusCreated)
	})
}

func handleTagDelete(groups groupService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		tagID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid tag id", http.StatusBadRequest)
			return
		}

		err = groups.DeleteTag(r.Context(), account.ID, r.PathValue("slug"), tagID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrGroupTagNotFound):
				render.ServiceError(w, "Tag not found", http.StatusNotFound)
			default:
				renderGroupError(w, l, err)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// renderGroupError maps the shared group failure modes. Non-members
// see the same 404 as a missing group.
func renderGroupError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrGroupNotFound):
		render.ServiceError(w, "Group not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrNotGroupMember):
		render.ServiceError(w, "Not a group member", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrAlreadyMember):
		render.ServiceError(w, "Already a group member", http.StatusConflict)
	default:
		l.Error("group request failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
