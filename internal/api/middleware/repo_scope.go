package middleware

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/repositories"
)

// RepoScopeMiddleware resolves the repository named in the route and
// requires the authenticated caller to be its verified owner. Batch
// payout surfaces are funder-only.
type RepoScopeMiddleware struct {
	repoRepo *repositories.RepoRepository
}

func NewRepoScopeMiddleware(repoRepo *repositories.RepoRepository) *RepoScopeMiddleware {
	return &RepoScopeMiddleware{repoRepo: repoRepo}
}

func (m *RepoScopeMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		params := r.Context().Value(apiContext.Params).(httprouter.Params)
		repoID := params.ByName("repo_id")

		repo, err := m.repoRepo.GetByID(repoID)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load repository", nil)
			return
		}
		if repo == nil {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Repository not found", nil)
			return
		}
		if repo.OwnerUserID != claims.UserID {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Not the repository owner", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Repo, repo)
		next(w, r.WithContext(ctx))
	}
}
