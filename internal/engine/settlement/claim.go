package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"bountypay/internal/engine/chain"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// Claim failures the caller must be able to tell apart.
var (
	ErrClaimNotFound   = errors.New("claim token not found")
	ErrAlreadyClaimed  = errors.New("payment already claimed")
	ErrClaimCancelled  = errors.New("payment was cancelled")
	ErrClaimExpired    = errors.New("payment expired")
	ErrWrongRecipient  = errors.New("payment is intended for a different account")
	ErrRecipientNoWallet = errors.New("recipient has no receiving wallet")
)

// ClaimItemResult is one payment's outcome within a batch claim.
type ClaimItemResult struct {
	PaymentID    string `json:"payment_id"`
	Success      bool   `json:"success"`
	TxHash       string `json:"tx_hash,omitempty"`
	Error        string `json:"error,omitempty"`
	Amount       int64  `json:"amount"`
	TokenAddress string `json:"token_address"`
}

type ClaimResult struct {
	RecipientWallet string            `json:"recipient_wallet"`
	Payments        []ClaimItemResult `json:"payments"`
}

// AllFailed reports whether no payment settled. Partial success is a
// valid terminal outcome; only a full wipeout is an operation failure.
func (r *ClaimResult) AllFailed() bool {
	for _, p := range r.Payments {
		if p.Success {
			return false
		}
	}
	return len(r.Payments) > 0
}

// ClaimService settles custodial payments once a recipient attaches a
// wallet. One claim token unlocks every pending payment for that
// recipient in a single batch.
type ClaimService struct {
	users       *repositories.UserRepository
	pending     *repositories.PendingPaymentRepository
	keys        *repositories.AccessKeyRepository
	payouts     *repositories.PayoutRepository
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	wallets     WalletDirectory
	signer      chain.Signer
	rpc         chain.Broadcaster
	network     string
}

func NewClaimService(
	users *repositories.UserRepository,
	pending *repositories.PendingPaymentRepository,
	keys *repositories.AccessKeyRepository,
	payouts *repositories.PayoutRepository,
	bounties *repositories.BountyRepository,
	submissions *repositories.SubmissionRepository,
	wallets WalletDirectory,
	signer chain.Signer,
	rpc chain.Broadcaster,
	network string,
) *ClaimService {
	return &ClaimService{
		users:       users,
		pending:     pending,
		keys:        keys,
		payouts:     payouts,
		bounties:    bounties,
		submissions: submissions,
		wallets:     wallets,
		signer:      signer,
		rpc:         rpc,
		network:     network,
	}
}

// Claim validates the token and the claimant, then settles every
// pending payment for the claimant's GitHub identity. Per-payment
// failures are aggregated; one payment's failure never rolls back
// another's success.
func (s *ClaimService) Claim(ctx context.Context, claimToken string, claimant *models.User) (*ClaimResult, error) {
	payment, err := s.pending.GetByClaimToken(claimToken)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrClaimNotFound
	}

	switch payment.Status {
	case models.PendingPaymentStatusClaimed:
		return nil, ErrAlreadyClaimed
	case models.PendingPaymentStatusCancelled:
		return nil, ErrClaimCancelled
	case models.PendingPaymentStatusExpired:
		return nil, ErrClaimExpired
	}

	now := time.Now().Unix()
	if payment.ExpiredAt(now) {
		// Lazy expiry: flip it on first touch after the deadline.
		s.pending.MarkExpired(payment.ID)
		return nil, ErrClaimExpired
	}

	// Claim tokens are bearer credentials; the authenticated GitHub
	// identity is the real authorization check.
	if claimant.GitHubLogin != payment.RecipientLogin {
		return nil, ErrWrongRecipient
	}

	wallet, err := s.wallets.ReceivingWallet(claimant.ID)
	if err != nil {
		return nil, err
	}
	if wallet == "" {
		return nil, ErrRecipientNoWallet
	}

	payments, err := s.pending.ListPendingByRecipient(payment.RecipientLogin)
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{RecipientWallet: wallet}
	for _, p := range payments {
		item := s.settleOne(ctx, p, claimant, wallet)
		result.Payments = append(result.Payments, item)
	}
	return result, nil
}

func (s *ClaimService) settleOne(ctx context.Context, payment *models.PendingPayment, claimant *models.User, wallet string) ClaimItemResult {
	item := ClaimItemResult{
		PaymentID:    payment.ID,
		Amount:       payment.Amount,
		TokenAddress: payment.TokenAddress,
	}
	fail := func(err error) ClaimItemResult {
		item.Error = err.Error()
		log.Error().Err(err).
			Str("payment", payment.ID).
			Int64("amount", payment.Amount).
			Str("token", payment.TokenAddress).
			Msg("pending payment settlement failed")
		return item
	}

	if payment.ExpiredAt(time.Now().Unix()) {
		s.pending.MarkExpired(payment.ID)
		return fail(ErrClaimExpired)
	}

	funderWallet, err := s.wallets.ReceivingWallet(payment.FunderUserID)
	if err != nil {
		return fail(err)
	}
	if funderWallet == "" {
		return fail(errors.New("funder wallet no longer on file"))
	}

	// Consume the dedicated authorization before signing. The
	// compare-and-swap on active status is what makes the single-use
	// guarantee hold under concurrency.
	ok, err := s.keys.MarkUsed(payment.AccessKeyID)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(errors.New("authorization is no longer active"))
	}

	memo, err := s.buildMemo(payment)
	if err != nil {
		return fail(err)
	}

	call, err := chain.TransferCall(payment.TokenAddress, wallet, payment.Amount, memo)
	if err != nil {
		return fail(err)
	}

	now := time.Now().Unix()
	payout := &models.Payout{
		ID:               newID("pay"),
		BountyID:         payment.BountyID,
		SubmissionID:     payment.SubmissionID,
		PayerUserID:      payment.FunderUserID,
		RecipientUserID:  claimant.ID,
		RecipientLogin:   payment.RecipientLogin,
		RecipientAddress: wallet,
		Amount:           payment.Amount,
		TokenAddress:     payment.TokenAddress,
		Status:           models.PayoutStatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if payment.BountyID != "" {
		if bounty, err := s.bounties.GetByID(payment.BountyID); err == nil && bounty != nil {
			issue := bounty.IssueNumber
			payout.MemoIssueNumber = &issue
		}
	}
	if payment.SubmissionID != "" {
		if sub, err := s.submissions.GetByID(payment.SubmissionID); err == nil && sub != nil {
			pr := sub.PRNumber
			payout.MemoPRNumber = &pr
		}
	}
	if err := s.payouts.Create(payout); err != nil {
		return fail(err)
	}

	nonce, err := s.rpc.SequenceNumber(ctx, funderWallet)
	if err != nil {
		s.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		return fail(err)
	}

	rawTx, err := s.signer.SignTransfer(ctx, chain.SignRequest{
		AuthorizationID: payment.AccessKeyID,
		FunderAddress:   funderWallet,
		Network:         s.network,
		Call:            call,
		Nonce:           nonce,
	})
	if err != nil {
		s.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSignFailed, err.Error())
		return fail(err)
	}
	s.payouts.MarkStep(payout.ID, models.PayoutStatusCreated, models.PayoutStatusSigned, "")

	txHash, err := s.rpc.Submit(ctx, rawTx)
	if err != nil {
		s.payouts.MarkStep(payout.ID, models.PayoutStatusSigned, models.PayoutStatusBroadcastFailed, err.Error())
		return fail(err)
	}
	s.payouts.MarkBroadcast(payout.ID, models.PayoutStatusSigned, txHash)

	// pending -> claimed races a funder cancellation; whichever status
	// transition commits first wins, and the loser sees zero rows.
	if err := s.finalize(payment, payout.ID); err != nil {
		return fail(err)
	}

	item.Success = true
	item.TxHash = txHash
	return item
}

func (s *ClaimService) buildMemo(payment *models.PendingPayment) (chain.Memo, error) {
	if payment.BountyID == "" || payment.SubmissionID == "" {
		return chain.EncodeTextMemo("bountypay claim")
	}

	bounty, err := s.bounties.GetByID(payment.BountyID)
	if err != nil {
		return chain.Memo{}, err
	}
	sub, err := s.submissions.GetByID(payment.SubmissionID)
	if err != nil {
		return chain.Memo{}, err
	}
	if bounty == nil || sub == nil {
		return chain.EncodeTextMemo("bountypay claim")
	}
	return chain.EncodeBountyMemo(uint64(bounty.IssueNumber), uint64(sub.PRNumber), payment.RecipientLogin)
}

// finalize marks the payment claimed and, when the payment settles a
// bounty, completes the bounty and pays the submission in the same
// transaction.
func (s *ClaimService) finalize(payment *models.PendingPayment, payoutID string) error {
	tx, err := s.payouts.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, err := s.pending.MarkClaimedTx(tx, payment.ID, payoutID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("payment is no longer pending")
	}

	if payment.BountyID != "" {
		if _, err := s.bounties.TransitionStatusTx(tx, payment.BountyID, models.BountyStatusOpen, models.BountyStatusCompleted); err != nil {
			return err
		}
	}
	if payment.SubmissionID != "" {
		if _, err := s.submissions.TransitionStatusTx(tx, payment.SubmissionID, models.SubmissionStatusMerged, models.SubmissionStatusPaid); err != nil {
			return err
		}
	}
	return tx.Commit()
}
