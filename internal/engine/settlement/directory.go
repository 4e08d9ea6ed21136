package settlement

import (
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// WalletDirectory resolves an internal user to a receiving wallet
// address. Empty string means no wallet on file.
type WalletDirectory interface {
	ReceivingWallet(userID string) (string, error)
}

// IdentityDirectory resolves a GitHub login to an internal user. Nil
// means the login is not registered.
type IdentityDirectory interface {
	ResolveLogin(login string) (*models.User, error)
}

// LedgerDirectory backs both directories with the users table.
type LedgerDirectory struct {
	users *repositories.UserRepository
}

func NewLedgerDirectory(users *repositories.UserRepository) *LedgerDirectory {
	return &LedgerDirectory{users: users}
}

func (d *LedgerDirectory) ReceivingWallet(userID string) (string, error) {
	user, err := d.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return user.WalletAddress, nil
}

func (d *LedgerDirectory) ResolveLogin(login string) (*models.User, error) {
	return d.users.GetByGitHubLogin(login)
}
