package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bountypay/internal/engine/github"
	"bountypay/internal/engine/settlement"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler is the single ingestion point for GitHub events.
// Verification is HMAC-SHA256 over the raw body: per-repository
// secrets for repo-level events, the application secret for
// installation lifecycle events.
type WebhookHandler struct {
	repoRepo   *repositories.RepoRepository
	deliveries *repositories.DeliveryRepository
	machine    *settlement.Machine
	appSecret  string
}

func NewWebhookHandler(repoRepo *repositories.RepoRepository, deliveries *repositories.DeliveryRepository, machine *settlement.Machine, appSecret string) *WebhookHandler {
	return &WebhookHandler{
		repoRepo:   repoRepo,
		deliveries: deliveries,
		machine:    machine,
		appSecret:  appSecret,
	}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	eventType := r.Header.Get("X-Event-Type")
	signature := r.Header.Get("X-Signature")
	deliveryID := r.Header.Get("X-Delivery-Id")

	delivery := &models.WebhookDelivery{
		ID:         "whd_" + uuid.New().String(),
		DeliveryID: deliveryID,
		EventType:  eventType,
		CreatedAt:  time.Now().Unix(),
	}
	// Exactly one audit row per inbound request, success or not. A
	// failure to persist it must never change the HTTP response.
	defer h.record(delivery)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = "unreadable body"
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unreadable request body", nil)
		return
	}

	if eventType == "" || signature == "" {
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = "missing headers"
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing signature or event type header", nil)
		return
	}

	event, err := github.Decode(eventType, body)
	if err == github.ErrUnknownEventType {
		// Acknowledged and ignored; GitHub sends more types than we
		// process.
		delivery.Status = models.DeliveryStatusIgnored
		writeMessage(w, http.StatusOK, "event type ignored")
		return
	}
	if err != nil {
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = "malformed payload"
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Malformed JSON payload", nil)
		return
	}
	h.annotate(delivery, event)

	secret, status, errCode, errMsg := h.secretFor(eventType, event)
	if errCode != "" {
		if status == http.StatusOK {
			delivery.Status = models.DeliveryStatusIgnored
			writeMessage(w, http.StatusOK, errMsg)
			return
		}
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = errMsg
		errors.WriteError(w, status, errCode, errMsg, nil)
		return
	}

	if !github.VerifySignature(secret, body, signature) {
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = "signature mismatch"
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Webhook signature verification failed", nil)
		return
	}

	if err := h.machine.HandleEvent(r.Context(), event); err != nil {
		delivery.Status = models.DeliveryStatusFailed
		delivery.Error = err.Error()
		log.Error().Err(err).Str("event_type", eventType).Str("delivery", deliveryID).Msg("webhook processing failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Event processing failed", nil)
		return
	}

	delivery.Status = models.DeliveryStatusProcessed
	now := time.Now().Unix()
	delivery.ProcessedAt = &now
	writeMessage(w, http.StatusOK, "event processed")
}

// secretFor picks the verification secret for an event. Installation
// lifecycle events use the app-level secret; repo-level events use the
// repository's own secret. An unknown repository is acknowledged
// without revealing whether it exists.
func (h *WebhookHandler) secretFor(eventType string, event github.Event) (secret string, status int, errCode, errMsg string) {
	if github.InstallationScoped(eventType) {
		if h.appSecret == "" {
			return "", http.StatusInternalServerError, errors.ErrCodeConfiguration, "No application webhook secret configured"
		}
		return h.appSecret, 0, "", ""
	}

	githubRepoID := eventRepoID(event)
	repo, err := h.repoRepo.GetByGitHubRepoID(githubRepoID)
	if err != nil {
		return "", http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load repository"
	}
	if repo == nil {
		return "", http.StatusOK, errors.ErrCodeNotFound, "repository not registered"
	}
	if repo.WebhookSecret == "" {
		return "", http.StatusInternalServerError, errors.ErrCodeConfiguration, "No webhook secret configured for repository"
	}
	return repo.WebhookSecret, 0, "", ""
}

func (h *WebhookHandler) annotate(delivery *models.WebhookDelivery, event github.Event) {
	switch ev := event.(type) {
	case github.PullRequestEvent:
		delivery.Action = ev.Action
		delivery.GitHubRepoID = ev.Repository.ID
		delivery.Summary = ev.PullRequest.Title
	case github.IssuesEvent:
		delivery.Action = ev.Action
		delivery.GitHubRepoID = ev.Repository.ID
		delivery.Summary = ev.Issue.Title
	case github.PingEvent:
		delivery.GitHubRepoID = ev.Repository.ID
		delivery.Summary = ev.Zen
	case github.InstallationEvent:
		delivery.Action = ev.Action
		delivery.InstallationID = ev.Installation.ID
	case github.InstallationRepositoriesEvent:
		delivery.Action = ev.Action
		delivery.InstallationID = ev.Installation.ID
	}
}

func (h *WebhookHandler) record(delivery *models.WebhookDelivery) {
	if delivery.Status == "" {
		delivery.Status = models.DeliveryStatusFailed
	}
	if err := h.deliveries.Record(delivery); err != nil {
		log.Error().Err(err).Str("delivery", delivery.DeliveryID).Msg("failed to write delivery audit record")
	}
}

func eventRepoID(event github.Event) int64 {
	switch ev := event.(type) {
	case github.PingEvent:
		return ev.Repository.ID
	case github.PullRequestEvent:
		return ev.Repository.ID
	case github.IssuesEvent:
		return ev.Repository.ID
	}
	return 0
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
