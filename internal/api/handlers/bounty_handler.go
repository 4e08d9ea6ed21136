package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/engine/chain"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// BountyHandler covers the funder-facing surface: bounty lifecycle,
// manual submission review, and custodial payment cancellation.
type BountyHandler struct {
	bountyRepo     *repositories.BountyRepository
	submissionRepo *repositories.SubmissionRepository
	payoutRepo     *repositories.PayoutRepository
	pendingRepo    *repositories.PendingPaymentRepository
	userRepo       *repositories.UserRepository
}

func NewBountyHandler(
	bountyRepo *repositories.BountyRepository,
	submissionRepo *repositories.SubmissionRepository,
	payoutRepo *repositories.PayoutRepository,
	pendingRepo *repositories.PendingPaymentRepository,
	userRepo *repositories.UserRepository,
) *BountyHandler {
	return &BountyHandler{
		bountyRepo:     bountyRepo,
		submissionRepo: submissionRepo,
		payoutRepo:     payoutRepo,
		pendingRepo:    pendingRepo,
		userRepo:       userRepo,
	}
}

type createBountyRequest struct {
	IssueNumber  int64    `json:"issue_number"`
	Title        string   `json:"title"`
	Body         string   `json:"body,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Amount       int64    `json:"amount"`
	TokenAddress string   `json:"token_address"`
}

// Create registers a draft bounty on an issue. Drafts are invisible to
// the settlement engine until published.
func (h *BountyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	repo := r.Context().Value(apiContext.Repo).(*models.Repo)

	var req createBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.IssueNumber <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "issue_number must be positive", nil)
		return
	}
	if req.Amount <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "amount must be positive", nil)
		return
	}
	if !chain.ValidAddress(req.TokenAddress) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "token_address is not a valid address", nil)
		return
	}

	existing, err := h.bountyRepo.GetOpenByRepoIssue(repo.GitHubRepoID, req.IssueNumber)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to check existing bounties", nil)
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Issue already has an open bounty", nil)
		return
	}

	now := time.Now().Unix()
	bounty := &models.Bounty{
		ID:           "bty_" + uuid.New().String(),
		RepoID:       repo.ID,
		GitHubRepoID: repo.GitHubRepoID,
		IssueNumber:  req.IssueNumber,
		Title:        req.Title,
		Body:         req.Body,
		Labels:       req.Labels,
		TotalFunded:  req.Amount,
		TokenAddress: req.TokenAddress,
		FunderUserID: claims.UserID,
		Status:       models.BountyStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.bountyRepo.Create(bounty); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create bounty", nil)
		return
	}

	writeJSON(w, http.StatusCreated, bounty)
}

func (h *BountyHandler) Get(w http.ResponseWriter, r *http.Request) {
	bounty := h.loadScopedBounty(w, r)
	if bounty == nil {
		return
	}
	writeJSON(w, http.StatusOK, bounty)
}

// Publish moves a draft bounty to open, making it eligible for
// submissions and settlement.
func (h *BountyHandler) Publish(w http.ResponseWriter, r *http.Request) {
	bounty := h.loadScopedBounty(w, r)
	if bounty == nil {
		return
	}

	ok, err := h.bountyRepo.TransitionStatus(bounty.ID, models.BountyStatusDraft, models.BountyStatusOpen)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to publish bounty", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Bounty is not a draft", map[string]string{"status": bounty.Status})
		return
	}

	updated, _ := h.bountyRepo.GetByID(bounty.ID)
	writeJSON(w, http.StatusOK, updated)
}

type fundBountyRequest struct {
	Amount int64 `json:"amount"`
}

// Fund adds to the bounty pool. Draft and open bounties accept funding.
func (h *BountyHandler) Fund(w http.ResponseWriter, r *http.Request) {
	bounty := h.loadScopedBounty(w, r)
	if bounty == nil {
		return
	}

	var req fundBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "amount must be positive", nil)
		return
	}
	if bounty.Status != models.BountyStatusDraft && bounty.Status != models.BountyStatusOpen {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Bounty no longer accepts funding", map[string]string{"status": bounty.Status})
		return
	}

	if err := h.bountyRepo.AddFunding(bounty.ID, req.Amount); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to add funding", nil)
		return
	}

	updated, _ := h.bountyRepo.GetByID(bounty.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Cancel withdraws a bounty. Refused while work is in flight; reject
// the submissions first.
func (h *BountyHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	bounty := h.loadScopedBounty(w, r)
	if bounty == nil {
		return
	}

	active, err := h.submissionRepo.CountActiveByBounty(bounty.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to check submissions", nil)
		return
	}
	if active > 0 {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Bounty has active submissions", map[string]int{"active_submissions": active})
		return
	}

	// Terminal statuses stay put; the swap below only ever runs from a
	// cancellable one.
	if bounty.Status != models.BountyStatusDraft && bounty.Status != models.BountyStatusOpen {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Bounty cannot be cancelled", map[string]string{"status": bounty.Status})
		return
	}

	ok, err := h.bountyRepo.TransitionStatus(bounty.ID, bounty.Status, models.BountyStatusCancelled)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to cancel bounty", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Bounty cannot be cancelled", map[string]string{"status": bounty.Status})
		return
	}

	updated, _ := h.bountyRepo.GetByID(bounty.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Approve turns a merged submission into an approved payout awaiting
// the next manual batch. The contributor must have a wallet on file;
// wallet-less contributors are paid through the custodial flow instead.
func (h *BountyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	bounty, sub := h.loadScopedSubmission(w, r)
	if sub == nil {
		return
	}

	if sub.Status != models.SubmissionStatusMerged {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Only merged submissions can be approved", map[string]string{"status": sub.Status})
		return
	}

	contributor, err := h.userRepo.GetByGitHubLogin(sub.ContributorLogin)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load contributor", nil)
		return
	}
	if contributor == nil || contributor.WalletAddress == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Contributor has no wallet; use the custodial flow", nil)
		return
	}

	now := time.Now().Unix()
	issue := bounty.IssueNumber
	pr := sub.PRNumber
	payout := &models.Payout{
		ID:               "pay_" + uuid.New().String(),
		BountyID:         bounty.ID,
		SubmissionID:     sub.ID,
		PayerUserID:      claims.UserID,
		RecipientUserID:  contributor.ID,
		RecipientLogin:   sub.ContributorLogin,
		RecipientAddress: contributor.WalletAddress,
		Amount:           bounty.TotalFunded,
		TokenAddress:     bounty.TokenAddress,
		MemoIssueNumber:  &issue,
		MemoPRNumber:     &pr,
		Status:           models.PayoutStatusApproved,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.payoutRepo.Create(payout); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create payout", nil)
		return
	}

	writeJSON(w, http.StatusCreated, payout)
}

// Reject closes out a submission without payment. When it was the last
// active submission the bounty goes back to accepting new work.
func (h *BountyHandler) Reject(w http.ResponseWriter, r *http.Request) {
	bounty, sub := h.loadScopedSubmission(w, r)
	if sub == nil {
		return
	}

	// Paid and already-rejected submissions are final; refuse before
	// touching the row.
	if !sub.Active() {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Submission cannot be rejected", map[string]string{"status": sub.Status})
		return
	}

	ok, err := h.submissionRepo.TransitionStatus(sub.ID, sub.Status, models.SubmissionStatusRejected)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to reject submission", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Submission cannot be rejected", map[string]string{"status": sub.Status})
		return
	}

	remaining, err := h.submissionRepo.CountActiveByBounty(bounty.ID)
	if err == nil && remaining == 0 {
		h.bountyRepo.EnsureOpen(bounty.ID)
	}

	updated, _ := h.submissionRepo.GetByID(sub.ID)
	writeJSON(w, http.StatusOK, updated)
}

// CancelPayment withdraws an unclaimed custodial payment. Races a
// concurrent claim; the compare-and-swap on pending decides the winner.
func (h *BountyHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	payment, err := h.pendingRepo.GetByID(params.ByName("payment_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load payment", nil)
		return
	}
	if payment == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Payment not found", nil)
		return
	}
	if payment.FunderUserID != claims.UserID {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Not the funder of this payment", nil)
		return
	}

	ok, err := h.pendingRepo.MarkCancelled(payment.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to cancel payment", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Payment is no longer pending", map[string]string{"status": payment.Status})
		return
	}

	updated, _ := h.pendingRepo.GetByID(payment.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (h *BountyHandler) loadScopedBounty(w http.ResponseWriter, r *http.Request) *models.Bounty {
	repo := r.Context().Value(apiContext.Repo).(*models.Repo)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	bounty, err := h.bountyRepo.GetByID(params.ByName("bounty_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load bounty", nil)
		return nil
	}
	if bounty == nil || bounty.RepoID != repo.ID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Bounty not found", nil)
		return nil
	}
	return bounty
}

func (h *BountyHandler) loadScopedSubmission(w http.ResponseWriter, r *http.Request) (*models.Bounty, *models.Submission) {
	repo := r.Context().Value(apiContext.Repo).(*models.Repo)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	sub, err := h.submissionRepo.GetByID(params.ByName("submission_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load submission", nil)
		return nil, nil
	}
	if sub == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Submission not found", nil)
		return nil, nil
	}

	bounty, err := h.bountyRepo.GetByID(sub.BountyID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load bounty", nil)
		return nil, nil
	}
	if bounty == nil || bounty.RepoID != repo.ID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Submission not found", nil)
		return nil, nil
	}
	return bounty, sub
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
