package settlement

import (
	"context"
	"testing"

	"bountypay/internal/engine/github"
	"bountypay/internal/platform/models"
)

func prOpenedEvent(repoID, prNumber int64, login, body string) github.PullRequestEvent {
	ev := github.PullRequestEvent{
		Action: "opened",
		Number: prNumber,
		Repository: github.Repository{
			ID:       repoID,
			FullName: "acme/widgets",
		},
	}
	ev.PullRequest.ID = prNumber * 100
	ev.PullRequest.Number = prNumber
	ev.PullRequest.Title = "Fix the parser"
	ev.PullRequest.Body = body
	ev.PullRequest.User.Login = login
	return ev
}

func prClosedEvent(repoID, prNumber int64, login string, merged bool) github.PullRequestEvent {
	ev := prOpenedEvent(repoID, prNumber, login, "")
	ev.Action = "closed"
	ev.PullRequest.Merged = merged
	return ev
}

func TestRegisterSubmissionIdempotent(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	ev := prOpenedEvent(555, 201, "octocat", "Closes #142")
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Redelivery of the same event must not create a second submission.
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Unexpected error on redelivery: %v", err)
	}

	count, err := f.submissions.CountActiveByBounty("b1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 submission, got %d", count)
	}
}

func TestRegisterSubmissionOnePerContributor(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 201, "octocat", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Same contributor, different PR against the same bounty.
	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 202, "octocat", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	count, _ := f.submissions.CountActiveByBounty("b1")
	if count != 1 {
		t.Errorf("Expected 1 active submission per contributor, got %d", count)
	}

	// A different contributor is allowed in.
	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 203, "hubot", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	count, _ = f.submissions.CountActiveByBounty("b1")
	if count != 2 {
		t.Errorf("Expected 2 active submissions, got %d", count)
	}
}

func TestClosedUnmergedPRRejectsSubmission(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 201, "octocat", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.HandleEvent(context.Background(), prClosedEvent(555, 201, "octocat", false)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sub, _ := f.submissions.GetByBountyPR("b1", 201)
	if sub.Status != models.SubmissionStatusRejected {
		t.Errorf("Expected rejected, got %s", sub.Status)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusOpen {
		t.Errorf("Expected bounty to stay open, got %s", bounty.Status)
	}
}

func TestClosedPRLeavesCompetingSubmissionStanding(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 201, "octocat", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 202, "hubot", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// One of the two competitors bows out.
	if err := m.HandleEvent(context.Background(), prClosedEvent(555, 201, "octocat", false)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	closed, _ := f.submissions.GetByBountyPR("b1", 201)
	if closed.Status != models.SubmissionStatusRejected {
		t.Errorf("Expected rejected, got %s", closed.Status)
	}
	survivor, _ := f.submissions.GetByBountyPR("b1", 202)
	if survivor.Status != models.SubmissionStatusPending {
		t.Errorf("Expected competing submission to stay pending, got %s", survivor.Status)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusOpen {
		t.Errorf("Expected bounty to stay open, got %s", bounty.Status)
	}
	count, _ := f.submissions.CountActiveByBounty("b1")
	if count != 1 {
		t.Errorf("Expected 1 active submission left, got %d", count)
	}
}

func TestMergedPRIsIdempotent(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedUser(t, "u2", "octocat", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, true)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)
	f.seedAccessKey(t, "k1", owner.ID, 10_000, false)

	signer := &fakeSigner{}
	m := f.machine(f.autoPay(signer, &fakeBroadcaster{}))

	if err := m.HandleEvent(context.Background(), prOpenedEvent(555, 201, "octocat", "Closes #142")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	merge := prClosedEvent(555, 201, "octocat", true)
	if err := m.HandleEvent(context.Background(), merge); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// A redelivered merge fails the pending -> merged swap and must not
	// sign a second transaction.
	if err := m.HandleEvent(context.Background(), merge); err != nil {
		t.Fatalf("Unexpected error on redelivery: %v", err)
	}

	if signer.calls != 1 {
		t.Errorf("Expected exactly 1 signed transaction, got %d", signer.calls)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusCompleted {
		t.Errorf("Expected completed, got %s", bounty.Status)
	}
	sub, _ := f.submissions.GetByBountyPR("b1", 201)
	if sub.Status != models.SubmissionStatusPaid {
		t.Errorf("Expected paid, got %s", sub.Status)
	}
}

func TestIssueClosedCancelsIdleBounty(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	ev := github.IssuesEvent{Action: "closed"}
	ev.Issue.Number = 142
	ev.Repository.ID = 555
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusCancelled {
		t.Errorf("Expected cancelled, got %s", bounty.Status)
	}
}

func TestIssueClosedSparesBountyWithActiveWork(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "u1", "acme-admin", testWallet)
	f.seedRepo(t, "r1", 555, owner.ID, false)
	f.seedBounty(t, "b1", "r1", 555, 142, 1000, owner.ID, models.BountyStatusOpen)
	f.seedSubmission(t, "s1", "b1", "octocat", 201, models.SubmissionStatusPending)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	ev := github.IssuesEvent{Action: "closed"}
	ev.Issue.Number = 142
	ev.Repository.ID = 555
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	bounty, _ := f.bounties.GetByID("b1")
	if bounty.Status != models.BountyStatusOpen {
		t.Errorf("Expected open while work is in flight, got %s", bounty.Status)
	}
}

func TestInstallationRegistersRepos(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", "acme", testWallet)

	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	ev := github.InstallationEvent{Action: "created"}
	ev.Installation.ID = 77
	repo := github.Repository{ID: 555, FullName: "acme/widgets"}
	repo.Owner.Login = "acme"
	ev.Repositories = []github.Repository{repo}

	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	created, err := f.repos.GetByGitHubRepoID(555)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("Expected repo to be created")
	}
	if created.OwnerUserID != "u1" {
		t.Errorf("Expected owner u1, got %s", created.OwnerUserID)
	}
	if created.WebhookSecret == "" {
		t.Error("Expected a generated webhook secret")
	}
	if !created.Active {
		t.Error("Expected repo to be active")
	}
}

func TestInstallationUnknownOwnerFails(t *testing.T) {
	f := newFixture(t)
	m := f.machine(f.autoPay(&fakeSigner{}, &fakeBroadcaster{}))

	ev := github.InstallationEvent{Action: "created"}
	repo := github.Repository{ID: 555, FullName: "ghost/widgets"}
	repo.Owner.Login = "ghost"
	ev.Repositories = []github.Repository{repo}

	if err := m.HandleEvent(context.Background(), ev); err == nil {
		t.Error("Expected error for unregistered owner, got nil")
	}
}
