package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, github_login, github_id, wallet_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.GitHubLogin, user.GitHubID, user.WalletAddress, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return scanUser(r.db.QueryRow(`
		SELECT id, github_login, github_id, wallet_address, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

func (r *UserRepository) GetByGitHubLogin(login string) (*models.User, error) {
	return scanUser(r.db.QueryRow(`
		SELECT id, github_login, github_id, wallet_address, created_at, updated_at
		FROM users WHERE github_login = ?
	`, login))
}

func (r *UserRepository) SetWalletAddress(userID, address string) error {
	_, err := r.db.Exec(`UPDATE users SET wallet_address = ?, updated_at = ? WHERE id = ?`,
		address, time.Now().Unix(), userID)
	return err
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var githubID sql.NullInt64
	var wallet sql.NullString
	err := row.Scan(&user.ID, &user.GitHubLogin, &githubID, &wallet, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.GitHubID = githubID.Int64
	user.WalletAddress = wallet.String
	return user, nil
}

type RepoRepository struct {
	db *sql.DB
}

func NewRepoRepository(db *sql.DB) *RepoRepository {
	return &RepoRepository{db: db}
}

func (r *RepoRepository) Create(repo *models.Repo) error {
	_, err := r.db.Exec(`
		INSERT INTO repos (id, github_repo_id, full_name, owner_user_id, installation_id, webhook_secret, auto_pay_enabled, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, repo.ID, repo.GitHubRepoID, repo.FullName, repo.OwnerUserID, repo.InstallationID, repo.WebhookSecret, repo.AutoPayEnabled, repo.Active, repo.CreatedAt, repo.UpdatedAt)
	return err
}

func (r *RepoRepository) GetByID(id string) (*models.Repo, error) {
	return scanRepo(r.db.QueryRow(selectRepo+` WHERE id = ?`, id))
}

// GetByGitHubRepoID matches on the numeric GitHub id so lookups
// survive repository renames.
func (r *RepoRepository) GetByGitHubRepoID(githubRepoID int64) (*models.Repo, error) {
	return scanRepo(r.db.QueryRow(selectRepo+` WHERE github_repo_id = ?`, githubRepoID))
}

func (r *RepoRepository) SetActive(githubRepoID int64, active bool) error {
	_, err := r.db.Exec(`UPDATE repos SET active = ?, updated_at = ? WHERE github_repo_id = ?`,
		active, time.Now().Unix(), githubRepoID)
	return err
}

func (r *RepoRepository) SetAutoPay(id string, enabled bool) error {
	_, err := r.db.Exec(`UPDATE repos SET auto_pay_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().Unix(), id)
	return err
}

const selectRepo = `
	SELECT id, github_repo_id, full_name, owner_user_id, installation_id, webhook_secret, auto_pay_enabled, active, created_at, updated_at
	FROM repos`

func scanRepo(row *sql.Row) (*models.Repo, error) {
	repo := &models.Repo{}
	var installationID sql.NullInt64
	err := row.Scan(&repo.ID, &repo.GitHubRepoID, &repo.FullName, &repo.OwnerUserID, &installationID,
		&repo.WebhookSecret, &repo.AutoPayEnabled, &repo.Active, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	repo.InstallationID = installationID.Int64
	return repo, nil
}
