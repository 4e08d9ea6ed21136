package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"bountypay/internal/platform/models"
)

type BountyRepository struct {
	db *sql.DB
}

func NewBountyRepository(db *sql.DB) *BountyRepository {
	return &BountyRepository{db: db}
}

func (r *BountyRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

func (r *BountyRepository) Create(bounty *models.Bounty) error {
	labelsJSON, _ := json.Marshal(bounty.Labels)
	_, err := r.db.Exec(`
		INSERT INTO bounties (id, repo_id, github_repo_id, issue_number, github_issue_id, title, body, labels, total_funded, token_address, funder_user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bounty.ID, bounty.RepoID, bounty.GitHubRepoID, bounty.IssueNumber, bounty.GitHubIssueID,
		bounty.Title, bounty.Body, string(labelsJSON), bounty.TotalFunded, bounty.TokenAddress,
		bounty.FunderUserID, bounty.Status, bounty.CreatedAt, bounty.UpdatedAt)
	return err
}

func (r *BountyRepository) GetByID(id string) (*models.Bounty, error) {
	return scanBounty(r.db.QueryRow(selectBounty+` WHERE id = ?`, id))
}

// GetOpenByRepoIssue resolves a linked issue number to its open bounty
// within the same GitHub repository.
func (r *BountyRepository) GetOpenByRepoIssue(githubRepoID, issueNumber int64) (*models.Bounty, error) {
	return scanBounty(r.db.QueryRow(selectBounty+`
		WHERE github_repo_id = ? AND issue_number = ? AND status = ?
	`, githubRepoID, issueNumber, models.BountyStatusOpen))
}

func (r *BountyRepository) GetByRepoIssue(githubRepoID, issueNumber int64) (*models.Bounty, error) {
	return scanBounty(r.db.QueryRow(selectBounty+`
		WHERE github_repo_id = ? AND issue_number = ?
		ORDER BY created_at DESC LIMIT 1
	`, githubRepoID, issueNumber))
}

// TransitionStatus moves a bounty from one status to another as a
// compare-and-swap keyed on the current status. Returns false when the
// bounty was no longer in fromStatus.
func (r *BountyRepository) TransitionStatus(id, fromStatus, toStatus string) (bool, error) {
	return r.transition(r.db, id, fromStatus, toStatus)
}

func (r *BountyRepository) TransitionStatusTx(tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	return r.transition(tx, id, fromStatus, toStatus)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *BountyRepository) transition(e execer, id, fromStatus, toStatus string) (bool, error) {
	now := time.Now().Unix()
	var stampCol string
	switch toStatus {
	case models.BountyStatusCompleted:
		stampCol = "paid_at"
	case models.BountyStatusCancelled:
		stampCol = "cancelled_at"
	case models.BountyStatusOpen:
		stampCol = "approved_at"
	}

	query := `UPDATE bounties SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []interface{}{toStatus, now, id, fromStatus}
	if stampCol != "" {
		query = `UPDATE bounties SET status = ?, ` + stampCol + ` = ?, updated_at = ? WHERE id = ? AND status = ?`
		args = []interface{}{toStatus, now, now, id, fromStatus}
	}

	res, err := e.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureOpen puts a bounty back to open unless it already reached a
// terminal status. Idempotent when the bounty is open already.
func (r *BountyRepository) EnsureOpen(id string) error {
	_, err := r.db.Exec(`
		UPDATE bounties SET status = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)
	`, models.BountyStatusOpen, time.Now().Unix(), id, models.BountyStatusCompleted, models.BountyStatusCancelled)
	return err
}

func (r *BountyRepository) AddFunding(id string, amount int64) error {
	_, err := r.db.Exec(`UPDATE bounties SET total_funded = total_funded + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now().Unix(), id)
	return err
}

const selectBounty = `
	SELECT id, repo_id, github_repo_id, issue_number, github_issue_id, title, body, labels, total_funded, token_address, funder_user_id, status, approved_at, paid_at, cancelled_at, created_at, updated_at
	FROM bounties`

func scanBounty(row *sql.Row) (*models.Bounty, error) {
	bounty := &models.Bounty{}
	var githubIssueID sql.NullInt64
	var title, body, labelsRaw sql.NullString
	var approvedAt, paidAt, cancelledAt sql.NullInt64

	err := row.Scan(&bounty.ID, &bounty.RepoID, &bounty.GitHubRepoID, &bounty.IssueNumber,
		&githubIssueID, &title, &body, &labelsRaw, &bounty.TotalFunded, &bounty.TokenAddress,
		&bounty.FunderUserID, &bounty.Status, &approvedAt, &paidAt, &cancelledAt,
		&bounty.CreatedAt, &bounty.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	bounty.GitHubIssueID = githubIssueID.Int64
	bounty.Title = title.String
	bounty.Body = body.String
	if labelsRaw.Valid && labelsRaw.String != "" {
		json.Unmarshal([]byte(labelsRaw.String), &bounty.Labels)
	}
	if approvedAt.Valid {
		bounty.ApprovedAt = &approvedAt.Int64
	}
	if paidAt.Valid {
		bounty.PaidAt = &paidAt.Int64
	}
	if cancelledAt.Valid {
		bounty.CancelledAt = &cancelledAt.Int64
	}
	return bounty, nil
}
