package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert inserts a submission keyed on (bounty, PR number). Redelivered
// PR-opened events hit the conflict clause and change nothing.
func (r *SubmissionRepository) Upsert(sub *models.Submission) error {
	_, err := r.db.Exec(`
		INSERT INTO submissions (id, bounty_id, contributor_user_id, contributor_login, pr_number, github_pr_id, pr_url, pr_title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bounty_id, pr_number) DO NOTHING
	`, sub.ID, sub.BountyID, nullStr(sub.ContributorUserID), sub.ContributorLogin, sub.PRNumber,
		sub.GitHubPRID, sub.PRURL, sub.PRTitle, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (r *SubmissionRepository) GetByID(id string) (*models.Submission, error) {
	return scanSubmission(r.db.QueryRow(selectSubmission+` WHERE id = ?`, id))
}

func (r *SubmissionRepository) GetByBountyPR(bountyID string, prNumber int64) (*models.Submission, error) {
	return scanSubmission(r.db.QueryRow(selectSubmission+` WHERE bounty_id = ? AND pr_number = ?`, bountyID, prNumber))
}

// ListActiveByRepoPR finds every non-terminal submission for a PR
// across all bounties of a GitHub repository.
func (r *SubmissionRepository) ListActiveByRepoPR(githubRepoID, prNumber int64) ([]*models.Submission, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.bounty_id, s.contributor_user_id, s.contributor_login, s.pr_number, s.github_pr_id, s.pr_url, s.pr_title, s.status, s.merged_at, s.rejected_at, s.paid_at, s.created_at, s.updated_at
		FROM submissions s
		JOIN bounties b ON s.bounty_id = b.id
		WHERE b.github_repo_id = ? AND s.pr_number = ? AND s.status IN (?, ?)
	`, githubRepoID, prNumber, models.SubmissionStatusPending, models.SubmissionStatusMerged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (r *SubmissionRepository) CountActiveByBounty(bountyID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM submissions WHERE bounty_id = ? AND status IN (?, ?)
	`, bountyID, models.SubmissionStatusPending, models.SubmissionStatusMerged).Scan(&count)
	return count, err
}

// CountActiveByContributor enforces at most one active submission per
// contributor per bounty.
func (r *SubmissionRepository) CountActiveByContributor(bountyID, contributorLogin string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM submissions WHERE bounty_id = ? AND contributor_login = ? AND status IN (?, ?)
	`, bountyID, contributorLogin, models.SubmissionStatusPending, models.SubmissionStatusMerged).Scan(&count)
	return count, err
}

func (r *SubmissionRepository) TransitionStatus(id, fromStatus, toStatus string) (bool, error) {
	return r.transition(r.db, id, fromStatus, toStatus)
}

func (r *SubmissionRepository) TransitionStatusTx(tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	return r.transition(tx, id, fromStatus, toStatus)
}

func (r *SubmissionRepository) transition(e execer, id, fromStatus, toStatus string) (bool, error) {
	now := time.Now().Unix()
	var stampCol string
	switch toStatus {
	case models.SubmissionStatusMerged:
		stampCol = "merged_at"
	case models.SubmissionStatusRejected:
		stampCol = "rejected_at"
	case models.SubmissionStatusPaid:
		stampCol = "paid_at"
	}

	query := `UPDATE submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []interface{}{toStatus, now, id, fromStatus}
	if stampCol != "" {
		query = `UPDATE submissions SET status = ?, ` + stampCol + ` = ?, updated_at = ? WHERE id = ? AND status = ?`
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

func (r *SubmissionRepository) SetContributorUserID(id, userID string) error {
	_, err := r.db.Exec(`UPDATE submissions SET contributor_user_id = ?, updated_at = ? WHERE id = ?`,
		userID, time.Now().Unix(), id)
	return err
}

const selectSubmission = `
	SELECT id, bounty_id, contributor_user_id, contributor_login, pr_number, github_pr_id, pr_url, pr_title, status, merged_at, rejected_at, paid_at, created_at, updated_at
	FROM submissions`

func scanSubmission(row *sql.Row) (*models.Submission, error) {
	sub := &models.Submission{}
	if err := scanSubmissionInto(row, sub); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]*models.Submission, error) {
	var subs []*models.Submission
	for rows.Next() {
		sub := &models.Submission{}
		if err := scanSubmissionInto(rows, sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubmissionInto(s interface {
	Scan(dest ...interface{}) error
}, sub *models.Submission) error {
	var contributorUserID, prURL, prTitle sql.NullString
	var githubPRID, mergedAt, rejectedAt, paidAt sql.NullInt64

	err := s.Scan(&sub.ID, &sub.BountyID, &contributorUserID, &sub.ContributorLogin, &sub.PRNumber,
		&githubPRID, &prURL, &prTitle, &sub.Status, &mergedAt, &rejectedAt, &paidAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return err
	}

	sub.ContributorUserID = contributorUserID.String
	sub.GitHubPRID = githubPRID.Int64
	sub.PRURL = prURL.String
	sub.PRTitle = prTitle.String
	if mergedAt.Valid {
		sub.MergedAt = &mergedAt.Int64
	}
	if rejectedAt.Valid {
		sub.RejectedAt = &rejectedAt.Int64
	}
	if paidAt.Valid {
		sub.PaidAt = &paidAt.Int64
	}
	return nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
