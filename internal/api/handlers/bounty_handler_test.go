package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/database"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

type bountyTestEnv struct {
	handler     *BountyHandler
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	repo        *models.Repo
}

func setupBountyTest(t *testing.T) *bountyTestEnv {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userRepo := repositories.NewUserRepository(db)
	bountyRepo := repositories.NewBountyRepository(db)
	submissionRepo := repositories.NewSubmissionRepository(db)
	payoutRepo := repositories.NewPayoutRepository(db)
	pendingRepo := repositories.NewPendingPaymentRepository(db)

	now := time.Now().Unix()
	if err := userRepo.Create(&models.User{ID: "u1", GitHubLogin: "acme-admin", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	repo := &models.Repo{
		ID: "r1", GitHubRepoID: 555, FullName: "acme/widgets", OwnerUserID: "u1",
		WebhookSecret: "whsec_test", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := repositories.NewRepoRepository(db).Create(repo); err != nil {
		t.Fatalf("Failed to seed repo: %v", err)
	}

	return &bountyTestEnv{
		handler:     NewBountyHandler(bountyRepo, submissionRepo, payoutRepo, pendingRepo, userRepo),
		bounties:    bountyRepo,
		submissions: submissionRepo,
		repo:        repo,
	}
}

func (e *bountyTestEnv) seedBounty(t *testing.T, id, status string) *models.Bounty {
	now := time.Now().Unix()
	bounty := &models.Bounty{
		ID: id, RepoID: e.repo.ID, GitHubRepoID: e.repo.GitHubRepoID, IssueNumber: 142,
		Title: "Fix the parser", TotalFunded: 1000,
		TokenAddress: "0x00000000000000000000000000000000000000aa",
		FunderUserID: "u1", Status: status, CreatedAt: now, UpdatedAt: now,
	}
	if err := e.bounties.Create(bounty); err != nil {
		t.Fatalf("Failed to seed bounty: %v", err)
	}
	return bounty
}

func (e *bountyTestEnv) seedSubmission(t *testing.T, id, bountyID string, prNumber int64, status string) *models.Submission {
	now := time.Now().Unix()
	sub := &models.Submission{
		ID: id, BountyID: bountyID, ContributorLogin: "octocat", PRNumber: prNumber,
		Status: status, CreatedAt: now, UpdatedAt: now,
	}
	if err := e.submissions.Upsert(sub); err != nil {
		t.Fatalf("Failed to seed submission: %v", err)
	}
	return sub
}

func (e *bountyTestEnv) adminRequest(params ...string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	ctx := context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{UserID: "u1"})
	ctx = context.WithValue(ctx, apiContext.Repo, e.repo)
	var ps httprouter.Params
	for i := 0; i+1 < len(params); i += 2 {
		ps = append(ps, httprouter.Param{Key: params[i], Value: params[i+1]})
	}
	ctx = context.WithValue(ctx, apiContext.Params, ps)
	return req.WithContext(ctx)
}

func TestCancelBountyRefusesTerminalStates(t *testing.T) {
	env := setupBountyTest(t)

	for _, tc := range []struct {
		id     string
		status string
	}{
		{"b1", models.BountyStatusCompleted},
		{"b2", models.BountyStatusCancelled},
	} {
		t.Run(tc.status, func(t *testing.T) {
			env.seedBounty(t, tc.id, tc.status)

			rr := httptest.NewRecorder()
			env.handler.Cancel(rr, env.adminRequest("bounty_id", tc.id))

			if rr.Code != http.StatusConflict {
				t.Errorf("Expected 409, got %d", rr.Code)
			}
			// The refusal must leave the row untouched.
			got, _ := env.bounties.GetByID(tc.id)
			if got.Status != tc.status {
				t.Errorf("Expected %s to survive, got %s", tc.status, got.Status)
			}
		})
	}
}

func TestCancelBountyWithoutActiveWork(t *testing.T) {
	env := setupBountyTest(t)
	env.seedBounty(t, "b1", models.BountyStatusOpen)

	rr := httptest.NewRecorder()
	env.handler.Cancel(rr, env.adminRequest("bounty_id", "b1"))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got, _ := env.bounties.GetByID("b1")
	if got.Status != models.BountyStatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
}

func TestRejectSubmissionRefusesSettledStates(t *testing.T) {
	env := setupBountyTest(t)
	env.seedBounty(t, "b1", models.BountyStatusCompleted)

	for _, tc := range []struct {
		id       string
		prNumber int64
		status   string
	}{
		{"s1", 201, models.SubmissionStatusPaid},
		{"s2", 202, models.SubmissionStatusRejected},
	} {
		t.Run(tc.status, func(t *testing.T) {
			env.seedSubmission(t, tc.id, "b1", tc.prNumber, tc.status)

			rr := httptest.NewRecorder()
			env.handler.Reject(rr, env.adminRequest("repo_id", "r1", "submission_id", tc.id))

			if rr.Code != http.StatusConflict {
				t.Errorf("Expected 409, got %d", rr.Code)
			}
			got, _ := env.submissions.GetByID(tc.id)
			if got.Status != tc.status {
				t.Errorf("Expected %s to survive, got %s", tc.status, got.Status)
			}
		})
	}

	// The refusal never reopens the settled bounty either.
	bounty, _ := env.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusCompleted {
		t.Errorf("Expected completed, got %s", bounty.Status)
	}
}

func TestRejectPendingSubmissionReopensBounty(t *testing.T) {
	env := setupBountyTest(t)
	env.seedBounty(t, "b1", models.BountyStatusOpen)
	env.seedSubmission(t, "s1", "b1", 201, models.SubmissionStatusPending)

	rr := httptest.NewRecorder()
	env.handler.Reject(rr, env.adminRequest("submission_id", "s1"))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got, _ := env.submissions.GetByID("s1")
	if got.Status != models.SubmissionStatusRejected {
		t.Errorf("Expected rejected, got %s", got.Status)
	}
	bounty, _ := env.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusOpen {
		t.Errorf("Expected open, got %s", bounty.Status)
	}
}
