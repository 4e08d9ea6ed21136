package settlement

import (
	"context"
	"testing"
	"time"

	"bountypay/internal/platform/models"
)

func TestClaimSettlesAllPendingPayments(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "0x2222222222222222222222222222222222222222")

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedAccessKey(t, "k1", funder.ID, 100, true)
	f.seedAccessKey(t, "k2", funder.ID, 200, true)
	f.seedAccessKey(t, "k3", funder.ID, 300, true)
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", future)
	f.seedPendingPayment(t, "pp2", "octocat", 200, "", "", funder.ID, "k2", "clm_two", future)
	f.seedPendingPayment(t, "pp3", "octocat", 300, "", "", funder.ID, "k3", "clm_three", future)

	// Revoke the middle payment's authorization; its settlement must
	// fail without dragging down the other two.
	if _, err := f.keys.Revoke("k2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	signer := &fakeSigner{}
	result, err := f.claimService(signer, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", claimant)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Payments) != 3 {
		t.Fatalf("Expected 3 payment results, got %d", len(result.Payments))
	}
	successes := 0
	for _, p := range result.Payments {
		if p.Success {
			successes++
		}
	}
	if successes != 2 {
		t.Errorf("Expected 2 successes, got %d", successes)
	}
	if result.AllFailed() {
		t.Error("Expected partial success, not a wipeout")
	}
	if signer.calls != 2 {
		t.Errorf("Expected 2 signed transactions, got %d", signer.calls)
	}

	pp1, _ := f.pending.GetByID("pp1")
	if pp1.Status != models.PendingPaymentStatusClaimed {
		t.Errorf("Expected pp1 claimed, got %s", pp1.Status)
	}
	if pp1.ClaimedPayoutID == "" {
		t.Error("Expected pp1 linked to its payout")
	}
	pp2, _ := f.pending.GetByID("pp2")
	if pp2.Status != models.PendingPaymentStatusPending {
		t.Errorf("Expected pp2 still pending, got %s", pp2.Status)
	}
	pp3, _ := f.pending.GetByID("pp3")
	if pp3.Status != models.PendingPaymentStatusClaimed {
		t.Errorf("Expected pp3 claimed, got %s", pp3.Status)
	}

	// Consumed authorizations are single-use.
	k1, _ := f.keys.GetByID("k1")
	if k1.Status != models.AccessKeyStatusUsed {
		t.Errorf("Expected k1 used, got %s", k1.Status)
	}
}

func TestClaimFinalizesBountyAndSubmission(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "0x2222222222222222222222222222222222222222")
	f.seedRepo(t, "r1", 555, funder.ID, true)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, funder.ID, models.BountyStatusOpen)
	f.seedSubmission(t, "s1", "b1", "octocat", 201, models.SubmissionStatusMerged)
	f.seedAccessKey(t, "k1", funder.ID, 1000, true)

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 1000, "b1", "s1", funder.ID, "k1", "clm_one", future)

	result, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", claimant)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Payments[0].Success {
		t.Fatalf("Expected success, got %s", result.Payments[0].Error)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusCompleted {
		t.Errorf("Expected completed, got %s", bounty.Status)
	}
	sub, _ := f.submissions.GetByID("s1")
	if sub.Status != models.SubmissionStatusPaid {
		t.Errorf("Expected paid, got %s", sub.Status)
	}
}

func TestClaimWrongRecipient(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	interloper := f.seedUser(t, "u3", "hubot", testWallet)
	f.seedAccessKey(t, "k1", funder.ID, 100, true)

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", future)

	_, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", interloper)
	if err != ErrWrongRecipient {
		t.Errorf("Expected ErrWrongRecipient, got %v", err)
	}
}

func TestClaimWithoutWallet(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "")
	f.seedAccessKey(t, "k1", funder.ID, 100, true)

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", future)

	_, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", claimant)
	if err != ErrRecipientNoWallet {
		t.Errorf("Expected ErrRecipientNoWallet, got %v", err)
	}
}

func TestClaimExpiredPayment(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "0x2222222222222222222222222222222222222222")
	f.seedAccessKey(t, "k1", funder.ID, 100, true)

	past := time.Now().Add(-time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", past)

	_, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", claimant)
	if err != ErrClaimExpired {
		t.Errorf("Expected ErrClaimExpired, got %v", err)
	}

	// Lazy expiry flips the row on first touch.
	pp, _ := f.pending.GetByID("pp1")
	if pp.Status != models.PendingPaymentStatusExpired {
		t.Errorf("Expected expired, got %s", pp.Status)
	}
}

func TestClaimAlreadyClaimed(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "0x2222222222222222222222222222222222222222")
	f.seedAccessKey(t, "k1", funder.ID, 100, true)

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", future)

	svc := f.claimService(&fakeSigner{}, &fakeBroadcaster{})
	if _, err := svc.Claim(context.Background(), "clm_one", claimant); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := svc.Claim(context.Background(), "clm_one", claimant)
	if err != ErrAlreadyClaimed {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimUnknownToken(t *testing.T) {
	f := newFixture(t)
	claimant := f.seedUser(t, "u2", "octocat", testWallet)

	_, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_missing", claimant)
	if err != ErrClaimNotFound {
		t.Errorf("Expected ErrClaimNotFound, got %v", err)
	}
}

func TestClaimCancelledPayment(t *testing.T) {
	f := newFixture(t)
	funder := f.seedUser(t, "u1", "acme-admin", testWallet)
	claimant := f.seedUser(t, "u2", "octocat", "0x2222222222222222222222222222222222222222")
	f.seedAccessKey(t, "k1", funder.ID, 100, true)

	future := time.Now().Add(24 * time.Hour).Unix()
	f.seedPendingPayment(t, "pp1", "octocat", 100, "", "", funder.ID, "k1", "clm_one", future)
	if _, err := f.pending.MarkCancelled("pp1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := f.claimService(&fakeSigner{}, &fakeBroadcaster{}).Claim(context.Background(), "clm_one", claimant)
	if err != ErrClaimCancelled {
		t.Errorf("Expected ErrClaimCancelled, got %v", err)
	}
}
