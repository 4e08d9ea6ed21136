package repositories

import (
	"database/sql"
	"time"

	"bountypay/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Record writes the audit row for one inbound webhook request. Called
// on every path, including failures.
func (r *DeliveryRepository) Record(delivery *models.WebhookDelivery) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, delivery_id, event_type, action, github_repo_id, installation_id, status, error, summary, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, delivery.ID, nullStr(delivery.DeliveryID), delivery.EventType, nullStr(delivery.Action),
		delivery.GitHubRepoID, delivery.InstallationID, delivery.Status, nullStr(delivery.Error),
		nullStr(delivery.Summary), delivery.CreatedAt, delivery.ProcessedAt)
	return err
}

// MarkProcessed is best-effort; the audit row itself is never mutated
// beyond this timestamp.
func (r *DeliveryRepository) MarkProcessed(id string) error {
	_, err := r.db.Exec(`UPDATE webhook_deliveries SET processed_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.WebhookDelivery, error) {
	delivery := &models.WebhookDelivery{}
	var deliveryID, action, errMsg, summary sql.NullString
	var repoID, installationID, processedAt sql.NullInt64

	err := r.db.QueryRow(`
		SELECT id, delivery_id, event_type, action, github_repo_id, installation_id, status, error, summary, created_at, processed_at
		FROM webhook_deliveries WHERE id = ?
	`, id).Scan(&delivery.ID, &deliveryID, &delivery.EventType, &action, &repoID,
		&installationID, &delivery.Status, &errMsg, &summary, &delivery.CreatedAt, &processedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	delivery.DeliveryID = deliveryID.String
	delivery.Action = action.String
	delivery.GitHubRepoID = repoID.Int64
	delivery.InstallationID = installationID.Int64
	delivery.Error = errMsg.String
	delivery.Summary = summary.String
	if processedAt.Valid {
		delivery.ProcessedAt = &processedAt.Int64
	}
	return delivery, nil
}
