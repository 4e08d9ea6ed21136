package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"bountypay/internal/api"
	"bountypay/internal/api/handlers"
	"bountypay/internal/api/middleware"
	"bountypay/internal/engine/chain"
	"bountypay/internal/engine/settlement"
	"bountypay/internal/pkg/logger"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/config"
	"bountypay/internal/platform/database"
	"bountypay/internal/platform/repositories"
)

func main() {
	// Local development convenience; a missing .env is fine.
	godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	repoRepo := repositories.NewRepoRepository(db)
	bountyRepo := repositories.NewBountyRepository(db)
	submissionRepo := repositories.NewSubmissionRepository(db)
	payoutRepo := repositories.NewPayoutRepository(db)
	keyRepo := repositories.NewAccessKeyRepository(db)
	pendingRepo := repositories.NewPendingPaymentRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	directory := settlement.NewLedgerDirectory(userRepo)
	signer := chain.NewSignerClient(cfg.Chain.SignerURL)
	rpc := chain.NewRPCClient(cfg.Chain.RPCURL)

	autoPay := settlement.NewAutoPay(bountyRepo, submissionRepo, payoutRepo, keyRepo, pendingRepo,
		directory, directory, signer, rpc, cfg.Chain.Network, cfg.Claims.PendingPaymentTTL)
	machine := settlement.NewMachine(repoRepo, bountyRepo, submissionRepo, directory, autoPay)
	claimSvc := settlement.NewClaimService(userRepo, pendingRepo, keyRepo, payoutRepo, bountyRepo,
		submissionRepo, directory, signer, rpc, cfg.Chain.Network)
	composer := settlement.NewBatchComposer(payoutRepo, bountyRepo, submissionRepo, directory, rpc)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(repoRepo, deliveryRepo, machine, cfg.GitHub.AppSecret)
	claimHandler := handlers.NewClaimHandler(claimSvc, userRepo)
	batchHandler := handlers.NewBatchHandler(composer)
	bountyHandler := handlers.NewBountyHandler(bountyRepo, submissionRepo, payoutRepo, pendingRepo, userRepo)
	accountHandler := handlers.NewAccountHandler(userRepo, keyRepo)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	repoScopeMiddleware := middleware.NewRepoScopeMiddleware(repoRepo)

	// Router
	deps := &api.Dependencies{
		WebhookHandler:      webhookHandler,
		ClaimHandler:        claimHandler,
		BatchHandler:        batchHandler,
		BountyHandler:       bountyHandler,
		AccountHandler:      accountHandler,
		HealthHandler:       healthHandler,
		AuthMiddleware:      authMiddleware,
		RepoScopeMiddleware: repoScopeMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
