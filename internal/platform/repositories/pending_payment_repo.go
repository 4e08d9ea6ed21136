package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type PendingPaymentRepository struct {
	db *sql.DB
}

func NewPendingPaymentRepository(db *sql.DB) *PendingPaymentRepository {
	return &PendingPaymentRepository{db: db}
}

func (r *PendingPaymentRepository) Create(payment *models.PendingPayment) error {
	_, err := r.db.Exec(`
		INSERT INTO pending_payments (id, recipient_login, recipient_github_id, amount, token_address, bounty_id, submission_id, funder_user_id, access_key_id, claim_token, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.ID, payment.RecipientLogin, payment.RecipientGitHubID, payment.Amount,
		payment.TokenAddress, nullStr(payment.BountyID), nullStr(payment.SubmissionID),
		payment.FunderUserID, payment.AccessKeyID, payment.ClaimToken, payment.Status,
		payment.ExpiresAt, payment.CreatedAt, payment.UpdatedAt)
	return err
}

func (r *PendingPaymentRepository) GetByID(id string) (*models.PendingPayment, error) {
	return scanPendingPayment(r.db.QueryRow(selectPendingPayment+` WHERE id = ?`, id))
}

func (r *PendingPaymentRepository) GetByClaimToken(token string) (*models.PendingPayment, error) {
	return scanPendingPayment(r.db.QueryRow(selectPendingPayment+` WHERE claim_token = ?`, token))
}

// ListPendingByRecipient returns every still-pending payment for a
// GitHub login. The claim flow settles all of them in one batch.
func (r *PendingPaymentRepository) ListPendingByRecipient(login string) ([]*models.PendingPayment, error) {
	rows, err := r.db.Query(selectPendingPayment+`
		WHERE recipient_login = ? AND status = ?
		ORDER BY created_at ASC
	`, login, models.PendingPaymentStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.PendingPayment
	for rows.Next() {
		payment := &models.PendingPayment{}
		if err := scanPendingPaymentInto(rows, payment); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// MarkClaimed flips pending -> claimed and links the payout that
// settled the payment, in one compare-and-swap. A concurrent
// cancellation that commits first makes this return false.
func (r *PendingPaymentRepository) MarkClaimed(id, payoutID string) (bool, error) {
	return r.markClaimed(r.db, id, payoutID)
}

func (r *PendingPaymentRepository) MarkClaimedTx(tx *sql.Tx, id, payoutID string) (bool, error) {
	return r.markClaimed(tx, id, payoutID)
}

func (r *PendingPaymentRepository) markClaimed(e execer, id, payoutID string) (bool, error) {
	res, err := e.Exec(`
		UPDATE pending_payments SET status = ?, claimed_payout_id = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.PendingPaymentStatusClaimed, payoutID, time.Now().Unix(), id, models.PendingPaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PendingPaymentRepository) MarkCancelled(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE pending_payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.PendingPaymentStatusCancelled, time.Now().Unix(), id, models.PendingPaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkExpired flips a payment past its deadline on first touch.
func (r *PendingPaymentRepository) MarkExpired(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE pending_payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.PendingPaymentStatusExpired, time.Now().Unix(), id, models.PendingPaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireBefore sweeps long-expired pending payments. Expiry is still
// checked lazily at claim time; this only keeps listings tidy.
func (r *PendingPaymentRepository) ExpireBefore(cutoff int64) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE pending_payments SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ?
	`, models.PendingPaymentStatusExpired, time.Now().Unix(), models.PendingPaymentStatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectPendingPayment = `
	SELECT id, recipient_login, recipient_github_id, amount, token_address, bounty_id, submission_id, funder_user_id, access_key_id, claim_token, claimed_payout_id, status, expires_at, created_at, updated_at
	FROM pending_payments`

func scanPendingPayment(row *sql.Row) (*models.PendingPayment, error) {
	payment := &models.PendingPayment{}
	if err := scanPendingPaymentInto(row, payment); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

func scanPendingPaymentInto(s interface {
	Scan(dest ...interface{}) error
}, payment *models.PendingPayment) error {
	var githubID sql.NullInt64
	var bountyID, submissionID, claimedPayoutID sql.NullString

	err := s.Scan(&payment.ID, &payment.RecipientLogin, &githubID, &payment.Amount,
		&payment.TokenAddress, &bountyID, &submissionID, &payment.FunderUserID,
		&payment.AccessKeyID, &payment.ClaimToken, &claimedPayoutID, &payment.Status,
		&payment.ExpiresAt, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return err
	}

	payment.RecipientGitHubID = githubID.Int64
	payment.BountyID = bountyID.String
	payment.SubmissionID = submissionID.String
	payment.ClaimedPayoutID = claimedPayoutID.String
	return nil
}
