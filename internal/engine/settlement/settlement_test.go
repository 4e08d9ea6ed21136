package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bountypay/internal/engine/chain"
	"bountypay/internal/platform/database"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

const (
	testToken  = "0x00000000000000000000000000000000000000aa"
	testWallet = "0x1111111111111111111111111111111111111111"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return db
}

// fixture bundles every repository over one test database.
type fixture struct {
	db          *sql.DB
	users       *repositories.UserRepository
	repos       *repositories.RepoRepository
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	payouts     *repositories.PayoutRepository
	keys        *repositories.AccessKeyRepository
	pending     *repositories.PendingPaymentRepository
	directory   *LedgerDirectory
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	users := repositories.NewUserRepository(db)
	return &fixture{
		db:          db,
		users:       users,
		repos:       repositories.NewRepoRepository(db),
		bounties:    repositories.NewBountyRepository(db),
		submissions: repositories.NewSubmissionRepository(db),
		payouts:     repositories.NewPayoutRepository(db),
		keys:        repositories.NewAccessKeyRepository(db),
		pending:     repositories.NewPendingPaymentRepository(db),
		directory:   NewLedgerDirectory(users),
	}
}

func (f *fixture) autoPay(signer chain.Signer, rpc chain.Broadcaster) *AutoPay {
	return NewAutoPay(f.bounties, f.submissions, f.payouts, f.keys, f.pending,
		f.directory, f.directory, signer, rpc, "testnet", 365*24*time.Hour)
}

func (f *fixture) machine(autoPay *AutoPay) *Machine {
	return NewMachine(f.repos, f.bounties, f.submissions, f.directory, autoPay)
}

func (f *fixture) claimService(signer chain.Signer, rpc chain.Broadcaster) *ClaimService {
	return NewClaimService(f.users, f.pending, f.keys, f.payouts, f.bounties,
		f.submissions, f.directory, signer, rpc, "testnet")
}

func (f *fixture) seedUser(t *testing.T, id, login, wallet string) *models.User {
	now := time.Now().Unix()
	user := &models.User{ID: id, GitHubLogin: login, WalletAddress: wallet, CreatedAt: now, UpdatedAt: now}
	if err := f.users.Create(user); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

func (f *fixture) seedRepo(t *testing.T, id string, githubRepoID int64, ownerUserID string, autoPay bool) *models.Repo {
	now := time.Now().Unix()
	repo := &models.Repo{
		ID:             id,
		GitHubRepoID:   githubRepoID,
		FullName:       "acme/widgets",
		OwnerUserID:    ownerUserID,
		WebhookSecret:  "whsec_test",
		AutoPayEnabled: autoPay,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.repos.Create(repo); err != nil {
		t.Fatalf("Failed to seed repo: %v", err)
	}
	return repo
}

func (f *fixture) seedBounty(t *testing.T, id, repoID string, githubRepoID, issueNumber, amount int64, funderUserID, status string) *models.Bounty {
	now := time.Now().Unix()
	bounty := &models.Bounty{
		ID:           id,
		RepoID:       repoID,
		GitHubRepoID: githubRepoID,
		IssueNumber:  issueNumber,
		Title:        "Fix the parser",
		TotalFunded:  amount,
		TokenAddress: testToken,
		FunderUserID: funderUserID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.bounties.Create(bounty); err != nil {
		t.Fatalf("Failed to seed bounty: %v", err)
	}
	return bounty
}

func (f *fixture) seedSubmission(t *testing.T, id, bountyID, login string, prNumber int64, status string) *models.Submission {
	now := time.Now().Unix()
	sub := &models.Submission{
		ID:               id,
		BountyID:         bountyID,
		ContributorLogin: login,
		PRNumber:         prNumber,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := f.submissions.Upsert(sub); err != nil {
		t.Fatalf("Failed to seed submission: %v", err)
	}
	return sub
}

func (f *fixture) seedAccessKey(t *testing.T, id, funderUserID string, limit int64, singleUse bool) *models.AccessKey {
	now := time.Now().Unix()
	key := &models.AccessKey{
		ID:           id,
		FunderUserID: funderUserID,
		TokenAddress: testToken,
		LimitAmount:  limit,
		SingleUse:    singleUse,
		Status:       models.AccessKeyStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.keys.Create(key); err != nil {
		t.Fatalf("Failed to seed access key: %v", err)
	}
	return key
}

func (f *fixture) seedPendingPayment(t *testing.T, id, login string, amount int64, bountyID, submissionID, funderUserID, accessKeyID, token string, expiresAt int64) *models.PendingPayment {
	now := time.Now().Unix()
	payment := &models.PendingPayment{
		ID:             id,
		RecipientLogin: login,
		Amount:         amount,
		TokenAddress:   testToken,
		BountyID:       bountyID,
		SubmissionID:   submissionID,
		FunderUserID:   funderUserID,
		AccessKeyID:    accessKeyID,
		ClaimToken:     token,
		Status:         models.PendingPaymentStatusPending,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.pending.Create(payment); err != nil {
		t.Fatalf("Failed to seed pending payment: %v", err)
	}
	return payment
}

// fakeSigner counts invocations so tests can assert exactly how many
// transactions were signed.
type fakeSigner struct {
	calls int
	err   error
}

func (s *fakeSigner) SignTransfer(_ context.Context, req chain.SignRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("rawtx-%d-nonce%d", s.calls, req.Nonce), nil
}

type fakeBroadcaster struct {
	sequence  uint64
	submits   int
	submitErr error
}

func (b *fakeBroadcaster) Submit(_ context.Context, rawTx string) (string, error) {
	b.submits++
	if b.submitErr != nil {
		return "", b.submitErr
	}
	return fmt.Sprintf("0xhash%d", b.submits), nil
}

func (b *fakeBroadcaster) SequenceNumber(_ context.Context, _ string) (uint64, error) {
	return b.sequence, nil
}

var errSignerDown = errors.New("signer unavailable")
