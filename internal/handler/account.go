package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
)

// RegisterAccount registers the user on the backend and stores the profile
// on the session.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var target *string
		switch key {
		case "username":
			target = &req.Username
		case "email":
			target = &req.Email
		case "password":
			target = &req.Password
		case "mobileNo":
			target = &req.MobileNo
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*target = v
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		var (
			invalid *account.ValidationError
			refused *account.RegistrationError
		)
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.As(err, &refused):
			zctx.From(r.Context()).Warn("Registration refused", zap.Error(err))
			writeError(w, http.StatusUnprocessableEntity, refused.Message)
		default:
			zctx.From(r.Context()).Error("Register", zap.Error(err))
			writeError(w, http.StatusInternalServerError, account.GenericFailureMessage)
		}
		return
	}

	sessionFrom(r.Context()).SetProfile(p)

	var e jx.Encoder
	encodeProfile(&e, p)
	writeJSON(w, http.StatusCreated, &e)
}

// GetProfile returns the profile stored by registration.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := sessionFrom(r.Context()).Profile()
	if !ok {
		writeError(w, http.StatusNotFound, "no profile")
		return
	}

	var e jx.Encoder
	encodeProfile(&e, p)
	writeJSON(w, http.StatusOK, &e)
}
