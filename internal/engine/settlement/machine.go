package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bountypay/internal/engine/github"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// Machine applies decoded webhook events to the ledger. Every
// transition is an idempotent upsert or a compare-and-swap keyed on
// the current status, so duplicate and out-of-order deliveries are
// harmless.
type Machine struct {
	repos       *repositories.RepoRepository
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	identity    IdentityDirectory
	autoPay     *AutoPay
}

func NewMachine(
	repos *repositories.RepoRepository,
	bounties *repositories.BountyRepository,
	submissions *repositories.SubmissionRepository,
	identity IdentityDirectory,
	autoPay *AutoPay,
) *Machine {
	return &Machine{
		repos:       repos,
		bounties:    bounties,
		submissions: submissions,
		identity:    identity,
		autoPay:     autoPay,
	}
}

// HandleEvent dispatches one decoded event. Unhandled variants are
// acknowledged without processing.
func (m *Machine) HandleEvent(ctx context.Context, event github.Event) error {
	switch ev := event.(type) {
	case github.PingEvent:
		return nil
	case github.PullRequestEvent:
		return m.handlePullRequest(ctx, ev)
	case github.IssuesEvent:
		return m.handleIssues(ctx, ev)
	case github.InstallationEvent:
		return m.handleInstallation(ev)
	case github.InstallationRepositoriesEvent:
		return m.handleInstallationRepositories(ev)
	default:
		return nil
	}
}

func (m *Machine) handlePullRequest(ctx context.Context, ev github.PullRequestEvent) error {
	switch ev.Action {
	case "opened", "edited", "reopened":
		return m.registerSubmissions(ev)
	case "closed":
		if ev.PullRequest.Merged {
			return m.settleMerged(ctx, ev)
		}
		return m.rejectClosed(ev)
	default:
		return nil
	}
}

// registerSubmissions upserts one pending submission per linked open
// bounty. Linked issues are processed independently; one failure does
// not block the rest.
func (m *Machine) registerSubmissions(ev github.PullRequestEvent) error {
	issues := github.LinkedIssues(ev.PullRequest.Body)
	if len(issues) == 0 {
		return nil
	}

	var firstErr error
	for _, issueNumber := range issues {
		if err := m.registerOne(ev, issueNumber); err != nil {
			log.Error().Err(err).
				Int64("repo", ev.Repository.ID).
				Int64("issue", issueNumber).
				Int64("pr", ev.PullRequest.Number).
				Msg("failed to register submission")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Machine) registerOne(ev github.PullRequestEvent, issueNumber int64) error {
	bounty, err := m.bounties.GetOpenByRepoIssue(ev.Repository.ID, issueNumber)
	if err != nil {
		return err
	}
	if bounty == nil {
		return nil
	}

	login := ev.PullRequest.User.Login

	// One active submission per contributor per bounty. A redelivery
	// of the same PR is handled by the upsert below, so only block
	// when the contributor has a different PR in flight.
	existing, err := m.submissions.GetByBountyPR(bounty.ID, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if existing == nil {
		active, err := m.submissions.CountActiveByContributor(bounty.ID, login)
		if err != nil {
			return err
		}
		if active > 0 {
			return nil
		}
	}

	var contributorUserID string
	if user, err := m.identity.ResolveLogin(login); err != nil {
		return err
	} else if user != nil {
		contributorUserID = user.ID
	}

	now := time.Now().Unix()
	return m.submissions.Upsert(&models.Submission{
		ID:                newID("sub"),
		BountyID:          bounty.ID,
		ContributorUserID: contributorUserID,
		ContributorLogin:  login,
		PRNumber:          ev.PullRequest.Number,
		GitHubPRID:        ev.PullRequest.ID,
		PRURL:             ev.PullRequest.HTMLURL,
		PRTitle:           ev.PullRequest.Title,
		Status:            models.SubmissionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

// rejectClosed marks every active submission for the closed PR
// rejected, then reopens each parent bounty only when no competing
// active submission remains.
func (m *Machine) rejectClosed(ev github.PullRequestEvent) error {
	subs, err := m.submissions.ListActiveByRepoPR(ev.Repository.ID, ev.PullRequest.Number)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		ok, err := m.submissions.TransitionStatus(sub.ID, sub.Status, models.SubmissionStatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		remaining, err := m.submissions.CountActiveByBounty(sub.BountyID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := m.bounties.EnsureOpen(sub.BountyID); err != nil {
				return err
			}
		}
	}
	return nil
}

// settleMerged flips each matching submission to merged and hands the
// qualifying transition to the auto-pay orchestrator. A redelivered
// merge event fails the compare-and-swap and never re-triggers a
// payout.
func (m *Machine) settleMerged(ctx context.Context, ev github.PullRequestEvent) error {
	subs, err := m.submissions.ListActiveByRepoPR(ev.Repository.ID, ev.PullRequest.Number)
	if err != nil {
		return err
	}

	repo, err := m.repos.GetByGitHubRepoID(ev.Repository.ID)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		ok, err := m.submissions.TransitionStatus(sub.ID, models.SubmissionStatusPending, models.SubmissionStatusMerged)
		if err != nil {
			return err
		}
		if !ok {
			// Already merged, rejected or paid; nothing to do.
			continue
		}

		bounty, err := m.bounties.GetByID(sub.BountyID)
		if err != nil {
			return err
		}
		if bounty == nil || repo == nil {
			continue
		}

		result, err := m.autoPay.Run(ctx, repo, bounty, sub)
		if err != nil {
			// The submission stays merged awaiting manual approval;
			// the payout row, if any, records which step failed.
			log.Error().Err(err).
				Str("bounty", bounty.ID).
				Str("submission", sub.ID).
				Str("payout", result.PayoutID).
				Msg("auto-pay failed")
			continue
		}
		if result.Skipped != "" {
			log.Info().
				Str("bounty", bounty.ID).
				Str("submission", sub.ID).
				Str("reason", result.Skipped).
				Msg("auto-pay skipped")
		}
	}
	return nil
}

// handleIssues cancels an open bounty when its issue closes without
// resolution. Reopened issues on a cancelled bounty are ignored;
// cancellation is terminal.
func (m *Machine) handleIssues(_ context.Context, ev github.IssuesEvent) error {
	if ev.Action != "closed" {
		return nil
	}

	bounty, err := m.bounties.GetOpenByRepoIssue(ev.Repository.ID, ev.Issue.Number)
	if err != nil {
		return err
	}
	if bounty == nil {
		return nil
	}

	active, err := m.submissions.CountActiveByBounty(bounty.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		// A submission is still in flight; its settlement decides the
		// bounty's fate.
		return nil
	}

	_, err = m.bounties.TransitionStatus(bounty.ID, models.BountyStatusOpen, models.BountyStatusCancelled)
	return err
}

func (m *Machine) handleInstallation(ev github.InstallationEvent) error {
	switch ev.Action {
	case "created":
		return m.activateRepos(ev.Installation, ev.Repositories)
	case "deleted":
		return m.deactivateRepos(ev.Repositories)
	default:
		return nil
	}
}

func (m *Machine) handleInstallationRepositories(ev github.InstallationRepositoriesEvent) error {
	if err := m.activateRepos(ev.Installation, ev.RepositoriesAdded); err != nil {
		return err
	}
	return m.deactivateRepos(ev.RepositoriesRemoved)
}

func (m *Machine) activateRepos(installation github.Installation, repos []github.Repository) error {
	for _, gr := range repos {
		existing, err := m.repos.GetByGitHubRepoID(gr.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := m.repos.SetActive(gr.ID, true); err != nil {
				return err
			}
			continue
		}

		owner, err := m.identity.ResolveLogin(gr.Owner.Login)
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("installation owner %q has no registered account", gr.Owner.Login)
		}

		now := time.Now().Unix()
		if err := m.repos.Create(&models.Repo{
			ID:             newID("repo"),
			GitHubRepoID:   gr.ID,
			FullName:       gr.FullName,
			OwnerUserID:    owner.ID,
			InstallationID: installation.ID,
			WebhookSecret:  newWebhookSecret(),
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) deactivateRepos(repos []github.Repository) error {
	for _, gr := range repos {
		if err := m.repos.SetActive(gr.ID, false); err != nil {
			return err
		}
	}
	return nil
}
