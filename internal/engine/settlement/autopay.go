package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bountypay/internal/engine/chain"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// Skip reasons reported when an auto-pay precondition fails. These are
// expected outcomes, not errors: the submission stays merged and
// awaits manual approval.
const (
	SkipAutoPayDisabled    = "auto_pay_disabled"
	SkipThirdPartyFunder   = "third_party_funder"
	SkipNoAccessKey        = "no_active_access_key"
	SkipFunderWalletUnset  = "funder_wallet_missing"
	SkipKeyLimitExhausted  = "authorization_limit_exhausted"
)

// AutoPayResult reports what a Run did: a completed payout, a custodial
// payment falling back for a wallet-less contributor, or a skip.
type AutoPayResult struct {
	PayoutID         string
	TxHash           string
	PendingPaymentID string
	Skipped          string
	FailedStep       string
}

// AutoPay executes an end-to-end payout on a qualifying merge. All
// signing authority is injected; nothing here reaches for ambient
// credentials.
type AutoPay struct {
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	payouts     *repositories.PayoutRepository
	keys        *repositories.AccessKeyRepository
	pending     *repositories.PendingPaymentRepository
	wallets     WalletDirectory
	identity    IdentityDirectory
	signer      chain.Signer
	rpc         chain.Broadcaster
	network     string
	pendingTTL  time.Duration
}

func NewAutoPay(
	bounties *repositories.BountyRepository,
	submissions *repositories.SubmissionRepository,
	payouts *repositories.PayoutRepository,
	keys *repositories.AccessKeyRepository,
	pending *repositories.PendingPaymentRepository,
	wallets WalletDirectory,
	identity IdentityDirectory,
	signer chain.Signer,
	rpc chain.Broadcaster,
	network string,
	pendingTTL time.Duration,
) *AutoPay {
	return &AutoPay{
		bounties:    bounties,
		submissions: submissions,
		payouts:     payouts,
		keys:        keys,
		pending:     pending,
		wallets:     wallets,
		identity:    identity,
		signer:      signer,
		rpc:         rpc,
		network:     network,
		pendingTTL:  pendingTTL,
	}
}

// Run is invoked once per qualifying merge transition. Precondition
// failures short-circuit as skips; a missing contributor wallet falls
// through to a custodial payment instead of failing.
func (a *AutoPay) Run(ctx context.Context, repo *models.Repo, bounty *models.Bounty, sub *models.Submission) (AutoPayResult, error) {
	if !repo.AutoPayEnabled {
		return AutoPayResult{Skipped: SkipAutoPayDisabled}, nil
	}
	if repo.OwnerUserID != bounty.FunderUserID {
		// Auto-pay never spends a third party's money without a human.
		return AutoPayResult{Skipped: SkipThirdPartyFunder}, nil
	}

	key, err := a.keys.GetActiveForSpend(bounty.FunderUserID, bounty.TokenAddress, bounty.TotalFunded)
	if err != nil {
		return AutoPayResult{}, err
	}
	if key == nil {
		return AutoPayResult{Skipped: SkipNoAccessKey}, nil
	}

	funderWallet, err := a.wallets.ReceivingWallet(bounty.FunderUserID)
	if err != nil {
		return AutoPayResult{}, err
	}
	if funderWallet == "" {
		return AutoPayResult{Skipped: SkipFunderWalletUnset}, nil
	}

	contributor, err := a.identity.ResolveLogin(sub.ContributorLogin)
	if err != nil {
		return AutoPayResult{}, err
	}

	var contributorWallet string
	if contributor != nil {
		contributorWallet, err = a.wallets.ReceivingWallet(contributor.ID)
		if err != nil {
			return AutoPayResult{}, err
		}
	}

	if contributorWallet == "" {
		paymentID, err := a.reserveCustodial(bounty, sub)
		if err != nil {
			return AutoPayResult{}, err
		}
		return AutoPayResult{PendingPaymentID: paymentID}, nil
	}

	// Reserve spend on the funder's authorization before signing; the
	// limit predicate in the update keeps concurrent payouts under the
	// cap.
	ok, err := a.keys.RecordSpend(key.ID, bounty.TotalFunded)
	if err != nil {
		return AutoPayResult{}, err
	}
	if !ok {
		return AutoPayResult{Skipped: SkipKeyLimitExhausted}, nil
	}

	return a.executePayout(ctx, key, funderWallet, contributorWallet, contributor, bounty, sub)
}

func (a *AutoPay) executePayout(
	ctx context.Context,
	key *models.AccessKey,
	funderWallet, contributorWallet string,
	contributor *models.User,
	bounty *models.Bounty,
	sub *models.Submission,
) (AutoPayResult, error) {
	now := time.Now().Unix()
	issueNumber := bounty.IssueNumber
	prNumber := sub.PRNumber

	payout := &models.Payout{
		ID:               newID("pay"),
		BountyID:         bounty.ID,
		SubmissionID:     sub.ID,
		PayerUserID:      bounty.FunderUserID,
		RecipientUserID:  contributor.ID,
		RecipientLogin:   sub.ContributorLogin,
		RecipientAddress: contributorWallet,
		Amount:           bounty.TotalFunded,
		TokenAddress:     bounty.TokenAddress,
		MemoIssueNumber:  &issueNumber,
		MemoPRNumber:     &prNumber,
		Status:           models.PayoutStatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.payouts.Create(payout); err != nil {
		return AutoPayResult{}, err
	}
	result := AutoPayResult{PayoutID: payout.ID}

	memo, err := chain.EncodeBountyMemo(uint64(issueNumber), uint64(prNumber), sub.ContributorLogin)
	if err != nil {
		a.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		result.FailedStep = "memo"
		return result, err
	}

	call, err := chain.TransferCall(bounty.TokenAddress, contributorWallet, bounty.TotalFunded, memo)
	if err != nil {
		a.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		result.FailedStep = "build"
		return result, err
	}

	nonce, err := a.rpc.SequenceNumber(ctx, funderWallet)
	if err != nil {
		a.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		result.FailedStep = "sequence"
		return result, err
	}

	rawTx, err := a.signer.SignTransfer(ctx, chain.SignRequest{
		AuthorizationID: key.ID,
		FunderAddress:   funderWallet,
		Network:         a.network,
		Call:            call,
		Nonce:           nonce,
	})
	if err != nil {
		a.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		result.FailedStep = "sign"
		return result, fmt.Errorf("signing failed: %w", err)
	}
	a.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSigned, "")

	txHash, err := a.rpc.Submit(ctx, rawTx)
	if err != nil {
		// The transaction holds a signature for this sequence number;
		// retrying it must reuse the same nonce, so park the payout
		// for operator remediation instead of re-signing.
		a.payouts.MarkStep(payout.ID, models.PayoutStatusSigned, models.PayoutStatusBroadcastFailed, err.Error())
		result.FailedStep = "broadcast"
		return result, fmt.Errorf("broadcast failed: %w", err)
	}
	if _, err := a.payouts.MarkBroadcast(payout.ID, models.PayoutStatusSigned, txHash); err != nil {
		result.FailedStep = "record"
		return result, err
	}
	result.TxHash = txHash

	if err := a.settleStatuses(bounty.ID, sub.ID); err != nil {
		result.FailedStep = "status_update"
		return result, err
	}

	log.Info().
		Str("payout", payout.ID).
		Str("tx", txHash).
		Int64("amount", bounty.TotalFunded).
		Str("token", bounty.TokenAddress).
		Msg("auto-pay settled")
	return result, nil
}

// settleStatuses commits bounty -> completed and submission -> paid as
// one transaction.
func (a *AutoPay) settleStatuses(bountyID, submissionID string) error {
	tx, err := a.bounties.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := a.bounties.TransitionStatusTx(tx, bountyID, models.BountyStatusOpen, models.BountyStatusCompleted); err != nil {
		return err
	}
	if _, err := a.submissions.TransitionStatusTx(tx, submissionID, models.SubmissionStatusMerged, models.SubmissionStatusPaid); err != nil {
		return err
	}
	return tx.Commit()
}

// reserveCustodial creates a pending payment plus a dedicated
// single-use authorization capped at exactly this payment's amount.
func (a *AutoPay) reserveCustodial(bounty *models.Bounty, sub *models.Submission) (string, error) {
	now := time.Now().Unix()

	key := &models.AccessKey{
		ID:           newID("ak"),
		FunderUserID: bounty.FunderUserID,
		TokenAddress: bounty.TokenAddress,
		LimitAmount:  bounty.TotalFunded,
		SingleUse:    true,
		Status:       models.AccessKeyStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.keys.Create(key); err != nil {
		return "", err
	}

	payment := &models.PendingPayment{
		ID:             newID("pp"),
		RecipientLogin: sub.ContributorLogin,
		Amount:         bounty.TotalFunded,
		TokenAddress:   bounty.TokenAddress,
		BountyID:       bounty.ID,
		SubmissionID:   sub.ID,
		FunderUserID:   bounty.FunderUserID,
		AccessKeyID:    key.ID,
		ClaimToken:     newClaimToken(),
		Status:         models.PendingPaymentStatusPending,
		ExpiresAt:      time.Now().Add(a.pendingTTL).Unix(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.pending.Create(payment); err != nil {
		return "", err
	}

	log.Info().
		Str("payment", payment.ID).
		Str("recipient", sub.ContributorLogin).
		Int64("amount", payment.Amount).
		Msg("contributor has no wallet; custodial payment reserved")
	return payment.ID, nil
}
