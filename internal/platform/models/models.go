package models

// Bounty lifecycle. Transitions only move forward:
// draft -> open -> {completed, cancelled}.
const (
	BountyStatusDraft     = "draft"
	BountyStatusOpen      = "open"
	BountyStatusCompleted = "completed"
	BountyStatusCancelled = "cancelled"
)

// Submission lifecycle: pending -> {merged, rejected}; merged -> paid.
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusMerged   = "merged"
	SubmissionStatusRejected = "rejected"
	SubmissionStatusPaid     = "paid"
)

// Payout ladder. "approved" payouts await a manual batch broadcast;
// auto-pay payouts walk created -> signed -> broadcast -> confirmed,
// parking in sign_failed / broadcast_failed so the failed step is
// recoverable by an operator.
const (
	PayoutStatusApproved        = "approved"
	PayoutStatusCreated         = "created"
	PayoutStatusSigned          = "signed"
	PayoutStatusSignFailed      = "sign_failed"
	PayoutStatusBroadcast       = "broadcast"
	PayoutStatusBroadcastFailed = "broadcast_failed"
	PayoutStatusConfirmed       = "confirmed"
)

const (
	PendingPaymentStatusPending   = "pending"
	PendingPaymentStatusClaimed   = "claimed"
	PendingPaymentStatusCancelled = "cancelled"
	PendingPaymentStatusExpired   = "expired"
)

const (
	AccessKeyStatusActive  = "active"
	AccessKeyStatusRevoked = "revoked"
	AccessKeyStatusUsed    = "used"
)

const (
	DeliveryStatusProcessed = "processed"
	DeliveryStatusIgnored   = "ignored"
	DeliveryStatusFailed    = "failed"
)

type User struct {
	ID            string `json:"id"`
	GitHubLogin   string `json:"github_login"`
	GitHubID      int64  `json:"github_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

type Repo struct {
	ID             string `json:"id"`
	GitHubRepoID   int64  `json:"github_repo_id"`
	FullName       string `json:"full_name"`
	OwnerUserID    string `json:"owner_user_id"`
	InstallationID int64  `json:"installation_id,omitempty"`
	WebhookSecret  string `json:"-"`
	AutoPayEnabled bool   `json:"auto_pay_enabled"`
	Active         bool   `json:"active"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// AccessKey is a delegated, spending-limited signing authorization
// granted by a funder. Single-use keys back exactly one custodial
// payment and are invalidated when it settles.
type AccessKey struct {
	ID           string `json:"id"`
	FunderUserID string `json:"funder_user_id"`
	TokenAddress string `json:"token_address"`
	LimitAmount  int64  `json:"limit_amount"`
	SpentAmount  int64  `json:"spent_amount"`
	SingleUse    bool   `json:"single_use"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (k *AccessKey) Remaining() int64 {
	return k.LimitAmount - k.SpentAmount
}

type Bounty struct {
	ID            string   `json:"id"`
	RepoID        string   `json:"repo_id"`
	GitHubRepoID  int64    `json:"github_repo_id"`
	IssueNumber   int64    `json:"issue_number"`
	GitHubIssueID int64    `json:"github_issue_id,omitempty"`
	Title         string   `json:"title"`
	Body          string   `json:"body,omitempty"`
	Labels        []string `json:"labels,omitempty"`
	TotalFunded   int64    `json:"total_funded"`
	TokenAddress  string   `json:"token_address"`
	FunderUserID  string   `json:"funder_user_id"`
	Status        string   `json:"status"`
	ApprovedAt    *int64   `json:"approved_at,omitempty"`
	PaidAt        *int64   `json:"paid_at,omitempty"`
	CancelledAt   *int64   `json:"cancelled_at,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

type Submission struct {
	ID                string `json:"id"`
	BountyID          string `json:"bounty_id"`
	ContributorUserID string `json:"contributor_user_id,omitempty"`
	ContributorLogin  string `json:"contributor_login"`
	PRNumber          int64  `json:"pr_number"`
	GitHubPRID        int64  `json:"github_pr_id,omitempty"`
	PRURL             string `json:"pr_url,omitempty"`
	PRTitle           string `json:"pr_title,omitempty"`
	Status            string `json:"status"`
	MergedAt          *int64 `json:"merged_at,omitempty"`
	RejectedAt        *int64 `json:"rejected_at,omitempty"`
	PaidAt            *int64 `json:"paid_at,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

func (s *Submission) Active() bool {
	return s.Status == SubmissionStatusPending || s.Status == SubmissionStatusMerged
}

// Payout is append-only once broadcast; corrections are new payouts.
type Payout struct {
	ID               string  `json:"id"`
	BountyID         string  `json:"bounty_id,omitempty"`
	SubmissionID     string  `json:"submission_id,omitempty"`
	PayerUserID      string  `json:"payer_user_id"`
	RecipientUserID  string  `json:"recipient_user_id,omitempty"`
	RecipientLogin   string  `json:"recipient_login,omitempty"`
	RecipientAddress string  `json:"recipient_address,omitempty"`
	Amount           int64   `json:"amount"`
	TokenAddress     string  `json:"token_address"`
	MemoIssueNumber  *int64  `json:"memo_issue_number,omitempty"`
	MemoPRNumber     *int64  `json:"memo_pr_number,omitempty"`
	MemoText         string  `json:"memo_text,omitempty"`
	TxHash           *string `json:"tx_hash,omitempty"`
	BlockNumber      *int64  `json:"block_number,omitempty"`
	Status           string  `json:"status"`
	Error            string  `json:"error,omitempty"`
	CreatedAt        int64   `json:"created_at"`
	UpdatedAt        int64   `json:"updated_at"`
}

// PendingPayment reserves funds for a recipient who has no wallet yet.
// The funds stay in the funder's wallet; the row plus a dedicated
// single-use access key is the reservation.
type PendingPayment struct {
	ID                string `json:"id"`
	RecipientLogin    string `json:"recipient_login"`
	RecipientGitHubID int64  `json:"recipient_github_id,omitempty"`
	Amount            int64  `json:"amount"`
	TokenAddress      string `json:"token_address"`
	BountyID          string `json:"bounty_id,omitempty"`
	SubmissionID      string `json:"submission_id,omitempty"`
	FunderUserID      string `json:"funder_user_id"`
	AccessKeyID       string `json:"access_key_id"`
	ClaimToken        string `json:"-"`
	ClaimedPayoutID   string `json:"claimed_payout_id,omitempty"`
	Status            string `json:"status"`
	ExpiresAt         int64  `json:"expires_at"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

func (p *PendingPayment) ExpiredAt(now int64) bool {
	return p.ExpiresAt > 0 && p.ExpiresAt < now
}

// WebhookDelivery is an append-only audit record, one per inbound
// webhook request.
type WebhookDelivery struct {
	ID             string `json:"id"`
	DeliveryID     string `json:"delivery_id,omitempty"`
	EventType      string `json:"event_type"`
	Action         string `json:"action,omitempty"`
	GitHubRepoID   int64  `json:"github_repo_id,omitempty"`
	InstallationID int64  `json:"installation_id,omitempty"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	Summary        string `json:"summary,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	ProcessedAt    *int64 `json:"processed_at,omitempty"`
}
