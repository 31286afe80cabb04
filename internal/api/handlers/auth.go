package handlers

import (
	"net/http"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/api/middleware"
)

// MeHandler reports the identity behind the presented API key.
type MeHandler struct{}

func NewMeHandler() *MeHandler {
	return &MeHandler{}
}

type MeResponse struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	KeyID  string `json:"key_id"`
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.IsZero() {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	api.Success(w, http.StatusOK, MeResponse{
		OrgID:  identity.OrgID,
		UserID: identity.UserID,
		KeyID:  identity.KeyID,
	})
}
