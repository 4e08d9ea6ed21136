package settlement

import (
	"context"
	"errors"
	"fmt"

	"bountypay/internal/engine/chain"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// BatchOperation is one independently signable transfer. Each
// operation gets its own sequence slot up front so the whole batch can
// be signed and broadcast in parallel without nonce collisions.
type BatchOperation struct {
	PayoutID string     `json:"payout_id"`
	Nonce    uint64     `json:"nonce"`
	Call     chain.Call `json:"call"`
}

// BatchItemSummary is the display-oriented companion to an operation.
type BatchItemSummary struct {
	PayoutID       string `json:"payout_id"`
	BountyID       string `json:"bounty_id,omitempty"`
	RecipientLogin string `json:"recipient_login,omitempty"`
	Amount         int64  `json:"amount"`
	TokenAddress   string `json:"token_address"`
}

type BatchResult struct {
	TotalCount   int                `json:"total_count"`
	TotalAmount  int64              `json:"total_amount"`
	TokenAddress string             `json:"token_address,omitempty"`
	Operations   []BatchOperation   `json:"operations"`
	Summaries    []BatchItemSummary `json:"summaries"`
}

var ErrNoFunderWallet = errors.New("funder has no wallet on file")

// BatchComposer turns a funder's approved-but-unbroadcast payouts into
// signable operations. Pure read/transform: signing and broadcasting
// happen in a caller-controlled loop.
type BatchComposer struct {
	payouts     *repositories.PayoutRepository
	bounties    *repositories.BountyRepository
	submissions *repositories.SubmissionRepository
	wallets     WalletDirectory
	rpc         chain.Broadcaster
}

func NewBatchComposer(
	payouts *repositories.PayoutRepository,
	bounties *repositories.BountyRepository,
	submissions *repositories.SubmissionRepository,
	wallets WalletDirectory,
	rpc chain.Broadcaster,
) *BatchComposer {
	return &BatchComposer{
		payouts:     payouts,
		bounties:    bounties,
		submissions: submissions,
		wallets:     wallets,
		rpc:         rpc,
	}
}

func (c *BatchComposer) Compose(ctx context.Context, funderUserID string) (*BatchResult, error) {
	payouts, err := c.payouts.ListApprovedByPayer(funderUserID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Operations: []BatchOperation{},
		Summaries:  []BatchItemSummary{},
	}
	if len(payouts) == 0 {
		return result, nil
	}

	funderWallet, err := c.wallets.ReceivingWallet(funderUserID)
	if err != nil {
		return nil, err
	}
	if funderWallet == "" {
		return nil, ErrNoFunderWallet
	}

	baseNonce, err := c.rpc.SequenceNumber(ctx, funderWallet)
	if err != nil {
		return nil, err
	}

	for i, payout := range payouts {
		memo, err := c.memoFor(payout)
		if err != nil {
			return nil, fmt.Errorf("payout %s: %w", payout.ID, err)
		}

		call, err := chain.TransferCall(payout.TokenAddress, payout.RecipientAddress, payout.Amount, memo)
		if err != nil {
			return nil, fmt.Errorf("payout %s: %w", payout.ID, err)
		}

		result.Operations = append(result.Operations, BatchOperation{
			PayoutID: payout.ID,
			Nonce:    baseNonce + uint64(i),
			Call:     call,
		})
		result.Summaries = append(result.Summaries, BatchItemSummary{
			PayoutID:       payout.ID,
			BountyID:       payout.BountyID,
			RecipientLogin: payout.RecipientLogin,
			Amount:         payout.Amount,
			TokenAddress:   payout.TokenAddress,
		})
		result.TotalCount++
		result.TotalAmount += payout.Amount
		result.TokenAddress = payout.TokenAddress
	}
	return result, nil
}

func (c *BatchComposer) memoFor(payout *models.Payout) (chain.Memo, error) {
	if payout.MemoIssueNumber != nil && payout.MemoPRNumber != nil {
		return chain.EncodeBountyMemo(uint64(*payout.MemoIssueNumber), uint64(*payout.MemoPRNumber), payout.RecipientLogin)
	}
	if payout.MemoText != "" {
		return chain.EncodeTextMemo(payout.MemoText)
	}
	return chain.EncodeTextMemo("bountypay batch")
}

// ConfirmBroadcast marks a set of approved payouts broadcast under a
// shared transaction hash and settles their linked bounty and
// submission records. Each payout is handled independently.
func (c *BatchComposer) ConfirmBroadcast(payoutIDs []string, txHash string) (int, error) {
	confirmed := 0
	var firstErr error
	for _, id := range payoutIDs {
		ok, err := c.payouts.MarkBroadcast(id, models.PayoutStatusApproved, txHash)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("payout %s: %w", id, err)
			}
			continue
		}
		if !ok {
			continue
		}
		confirmed++

		payout, err := c.payouts.GetByID(id)
		if err != nil || payout == nil {
			continue
		}
		if payout.BountyID != "" {
			c.bounties.TransitionStatus(payout.BountyID, models.BountyStatusOpen, models.BountyStatusCompleted)
		}
		if payout.SubmissionID != "" {
			c.submissions.TransitionStatus(payout.SubmissionID, models.SubmissionStatusMerged, models.SubmissionStatusPaid)
		}
	}
	return confirmed, firstErr
}

// MarkConfirmed attaches the block number once the transaction mines.
func (c *BatchComposer) MarkConfirmed(payoutIDs []string, blockNumber int64) (int, error) {
	confirmed := 0
	var firstErr error
	for _, id := range payoutIDs {
		ok, err := c.payouts.MarkConfirmed(id, blockNumber)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("payout %s: %w", id, err)
			}
			continue
		}
		if ok {
			confirmed++
		}
	}
	return confirmed, firstErr
}
