package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type AccessKeyRepository struct {
	db *sql.DB
}

func NewAccessKeyRepository(db *sql.DB) *AccessKeyRepository {
	return &AccessKeyRepository{db: db}
}

func (r *AccessKeyRepository) Create(key *models.AccessKey) error {
	_, err := r.db.Exec(`
		INSERT INTO access_keys (id, funder_user_id, token_address, limit_amount, spent_amount, single_use, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, key.ID, key.FunderUserID, key.TokenAddress, key.LimitAmount, key.SpentAmount,
		key.SingleUse, key.Status, key.CreatedAt, key.UpdatedAt)
	return err
}

func (r *AccessKeyRepository) GetByID(id string) (*models.AccessKey, error) {
	return scanAccessKey(r.db.QueryRow(selectAccessKey+` WHERE id = ?`, id))
}

// GetActiveForSpend finds a funder's active reusable authorization for
// a token with enough remaining limit to cover amount.
func (r *AccessKeyRepository) GetActiveForSpend(funderUserID, tokenAddress string, amount int64) (*models.AccessKey, error) {
	return scanAccessKey(r.db.QueryRow(selectAccessKey+`
		WHERE funder_user_id = ? AND token_address = ? AND status = ? AND single_use = 0
		  AND spent_amount + ? <= limit_amount
		ORDER BY created_at ASC LIMIT 1
	`, funderUserID, tokenAddress, models.AccessKeyStatusActive, amount))
}

// RecordSpend adds to a key's spent amount. The limit check lives in
// the UPDATE predicate so two concurrent spends cannot both squeeze
// under the cap.
func (r *AccessKeyRepository) RecordSpend(id string, amount int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE access_keys SET spent_amount = spent_amount + ?, updated_at = ?
		WHERE id = ? AND status = ? AND spent_amount + ? <= limit_amount
	`, amount, time.Now().Unix(), id, models.AccessKeyStatusActive, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkUsed invalidates a single-use authorization. Compare-and-swap on
// active status so it cannot be consumed twice.
func (r *AccessKeyRepository) MarkUsed(id string) (bool, error) {
	return r.transition(id, models.AccessKeyStatusActive, models.AccessKeyStatusUsed)
}

func (r *AccessKeyRepository) Revoke(id string) (bool, error) {
	return r.transition(id, models.AccessKeyStatusActive, models.AccessKeyStatusRevoked)
}

func (r *AccessKeyRepository) transition(id, fromStatus, toStatus string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE access_keys SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, toStatus, time.Now().Unix(), id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const selectAccessKey = `
	SELECT id, funder_user_id, token_address, limit_amount, spent_amount, single_use, status, created_at, updated_at
	FROM access_keys`

func scanAccessKey(row *sql.Row) (*models.AccessKey, error) {
	key := &models.AccessKey{}
	err := row.Scan(&key.ID, &key.FunderUserID, &key.TokenAddress, &key.LimitAmount,
		&key.SpentAmount, &key.SingleUse, &key.Status, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return key, nil
}
