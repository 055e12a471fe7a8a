package handlers

import (
	"errors"
	"net/http"

	"github.com/pribylovaa/jwt-auth-service/internal/service"
	apierrors "github.com/pribylovaa/jwt-auth-service/internal/transport/http/errors"
	"github.com/pribylovaa/jwt-auth-service/internal/transport/http/middleware"
)

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in RegisterRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	if _, err := h.Auth.RegisterUser(r.Context(), in.Name, in.Surname, in.Email, in.Password); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msgRegistered)
}

func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	tp, err := h.Auth.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenFromModel(tp))
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	value, err := decodeRefresh(w, r)
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	tp, err := h.Auth.RefreshToken(r.Context(), value)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenFromModel(tp))
}

func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	value, err := decodeRefresh(w, r)
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	if err := h.Auth.RevokeToken(r.Context(), value); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msgRevoked)
}

// Me возвращает профиль владельца Bearer access-токена.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.TokenFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
		return
	}

	user, claims, err := h.Auth.CurrentUser(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			err = apierrors.ErrUnauthorized
		}
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meFromUser(user, claims))
}
