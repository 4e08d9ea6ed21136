package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type PayoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

func (r *PayoutRepository) Create(payout *models.Payout) error {
	return r.create(r.db, payout)
}

func (r *PayoutRepository) CreateTx(tx *sql.Tx, payout *models.Payout) error {
	return r.create(tx, payout)
}

func (r *PayoutRepository) create(e execer, payout *models.Payout) error {
	_, err := e.Exec(`
		INSERT INTO payouts (id, bounty_id, submission_id, payer_user_id, recipient_user_id, recipient_login, recipient_address, amount, token_address, memo_issue_number, memo_pr_number, memo_text, tx_hash, block_number, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, payout.ID, nullStr(payout.BountyID), nullStr(payout.SubmissionID), payout.PayerUserID,
		nullStr(payout.RecipientUserID), nullStr(payout.RecipientLogin), nullStr(payout.RecipientAddress),
		payout.Amount, payout.TokenAddress, payout.MemoIssueNumber, payout.MemoPRNumber,
		nullStr(payout.MemoText), payout.TxHash, payout.BlockNumber, payout.Status,
		nullStr(payout.Error), payout.CreatedAt, payout.UpdatedAt)
	return err
}

func (r *PayoutRepository) GetByID(id string) (*models.Payout, error) {
	row := r.db.QueryRow(selectPayout+` WHERE id = ?`, id)
	payout := &models.Payout{}
	if err := scanPayoutInto(row, payout); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return payout, nil
}

// ListApprovedByPayer returns payouts approved by a funder but not yet
// broadcast, oldest first, for the batch composer.
func (r *PayoutRepository) ListApprovedByPayer(payerUserID string) ([]*models.Payout, error) {
	rows, err := r.db.Query(selectPayout+`
		WHERE payer_user_id = ? AND status = ?
		ORDER BY created_at ASC
	`, payerUserID, models.PayoutStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []*models.Payout
	for rows.Next() {
		payout := &models.Payout{}
		if err := scanPayoutInto(rows, payout); err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}
	return payouts, rows.Err()
}

// MarkStep records progress through the signing ladder. The transition
// is keyed on the current status; broadcast fields are written once and
// never edited afterwards.
func (r *PayoutRepository) MarkStep(id, fromStatus, toStatus string, errMsg string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE payouts SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?
	`, toStatus, nullStr(errMsg), time.Now().Unix(), id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PayoutRepository) MarkBroadcast(id, fromStatus, txHash string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE payouts SET status = ?, tx_hash = ?, updated_at = ? WHERE id = ? AND status = ? AND tx_hash IS NULL
	`, models.PayoutStatusBroadcast, txHash, time.Now().Unix(), id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PayoutRepository) MarkConfirmed(id string, blockNumber int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE payouts SET status = ?, block_number = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.PayoutStatusConfirmed, blockNumber, time.Now().Unix(), id, models.PayoutStatusBroadcast)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const selectPayout = `
	SELECT id, bounty_id, submission_id, payer_user_id, recipient_user_id, recipient_login, recipient_address, amount, token_address, memo_issue_number, memo_pr_number, memo_text, tx_hash, block_number, status, error, created_at, updated_at
	FROM payouts`

func scanPayoutInto(s interface {
	Scan(dest ...interface{}) error
}, payout *models.Payout) error {
	var bountyID, submissionID, recipientUserID, recipientLogin, recipientAddress, memoText, txHash, errMsg sql.NullString
	var memoIssue, memoPR, blockNumber sql.NullInt64

	err := s.Scan(&payout.ID, &bountyID, &submissionID, &payout.PayerUserID, &recipientUserID,
		&recipientLogin, &recipientAddress, &payout.Amount, &payout.TokenAddress,
		&memoIssue, &memoPR, &memoText, &txHash, &blockNumber, &payout.Status, &errMsg,
		&payout.CreatedAt, &payout.UpdatedAt)
	if err != nil {
		return err
	}

	payout.BountyID = bountyID.String
	payout.SubmissionID = submissionID.String
	payout.RecipientUserID = recipientUserID.String
	payout.RecipientLogin = recipientLogin.String
	payout.RecipientAddress = recipientAddress.String
	payout.MemoText = memoText.String
	payout.Error = errMsg.String
	if memoIssue.Valid {
		payout.MemoIssueNumber = &memoIssue.Int64
	}
	if memoPR.Valid {
		payout.MemoPRNumber = &memoPR.Int64
	}
	if txHash.Valid {
		payout.TxHash = &txHash.String
	}
	if blockNumber.Valid {
		payout.BlockNumber = &blockNumber.Int64
	}
	return nil
}
