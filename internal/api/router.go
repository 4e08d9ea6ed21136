package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/api/handlers"
	"bountypay/internal/api/middleware"
)

type Dependencies struct {
	WebhookHandler      *handlers.WebhookHandler
	ClaimHandler        *handlers.ClaimHandler
	BatchHandler        *handlers.BatchHandler
	BountyHandler       *handlers.BountyHandler
	AccountHandler      *handlers.AccountHandler
	HealthHandler       *handlers.HealthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RepoScopeMiddleware *middleware.RepoScopeMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))

	// Webhook ingestion is unauthenticated; the HMAC signature on the
	// body is the credential.
	router.POST("/webhooks/github",
		chain(deps.WebhookHandler.Receive, middleware.RateLimit("webhook")))

	// Middleware references
	authMid := deps.AuthMiddleware
	repoMid := deps.RepoScopeMiddleware

	// Account and wallet
	router.GET("/api/v1/me",
		chain(deps.AccountHandler.Me, authMid.Handle, middleware.RateLimit("api_read")))
	router.PATCH("/api/v1/me/wallet",
		chain(deps.AccountHandler.SetWallet, authMid.Handle, middleware.RateLimit("api_write")))

	// Delegated signing authorizations
	router.POST("/api/v1/access-keys",
		chain(deps.AccountHandler.CreateAccessKey, authMid.Handle, middleware.RateLimit("api_write")))
	router.POST("/api/v1/access-keys/:key_id/revoke",
		chain(deps.AccountHandler.RevokeAccessKey, authMid.Handle, middleware.RateLimit("api_write")))

	// Custodial claim flow
	router.POST("/api/v1/claims/:token",
		chain(deps.ClaimHandler.Claim, authMid.Handle, middleware.RateLimit("claim")))
	router.POST("/api/v1/payments/:payment_id/cancel",
		chain(deps.BountyHandler.CancelPayment, authMid.Handle, middleware.RateLimit("api_write")))

	// Bounty management, scoped to repositories the caller owns
	router.POST("/api/v1/repos/:repo_id/bounties",
		chain(deps.BountyHandler.Create, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))
	router.GET("/api/v1/repos/:repo_id/bounties/:bounty_id",
		chain(deps.BountyHandler.Get, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/v1/repos/:repo_id/bounties/:bounty_id/publish",
		chain(deps.BountyHandler.Publish, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))
	router.POST("/api/v1/repos/:repo_id/bounties/:bounty_id/fund",
		chain(deps.BountyHandler.Fund, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))
	router.POST("/api/v1/repos/:repo_id/bounties/:bounty_id/cancel",
		chain(deps.BountyHandler.Cancel, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))

	// Manual submission review
	router.POST("/api/v1/repos/:repo_id/submissions/:submission_id/approve",
		chain(deps.BountyHandler.Approve, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))
	router.POST("/api/v1/repos/:repo_id/submissions/:submission_id/reject",
		chain(deps.BountyHandler.Reject, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))

	// Batch payout composition and confirmation
	router.GET("/api/v1/repos/:repo_id/payouts/batch",
		chain(deps.BatchHandler.Compose, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/v1/repos/:repo_id/payouts/batch",
		chain(deps.BatchHandler.Update, authMid.Handle, repoMid.Handle, middleware.RateLimit("api_write")))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
