package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/api/middleware"
	"github.com/cloo-solutions/counsel/internal/domain"
)

type ProjectLister interface {
	ListByMember(ctx context.Context, orgID, userID string) ([]*domain.Project, error)
}

type ProjectHandler struct {
	repo ProjectLister
}

func NewProjectHandler(repo ProjectLister) *ProjectHandler {
	return &ProjectHandler{repo: repo}
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// List returns the projects the caller is a member of.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.IsZero() {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projects, err := h.repo.ListByMember(r.Context(), identity.OrgID, identity.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, ProjectResponse{
			ID:        p.ID,
			Name:      p.Name,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	api.Success(w, http.StatusOK, resp)
}
