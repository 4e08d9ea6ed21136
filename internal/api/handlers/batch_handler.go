package handlers

import (
	"encoding/json"
	"net/http"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/engine/settlement"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/models"
)

type BatchHandler struct {
	composer *settlement.BatchComposer
}

func NewBatchHandler(composer *settlement.BatchComposer) *BatchHandler {
	return &BatchHandler{composer: composer}
}

// Compose returns every approved payout for the repository owner as a
// set of signable operations with pre-assigned sequence numbers. The
// caller signs and broadcasts; nothing is mutated here.
func (h *BatchHandler) Compose(w http.ResponseWriter, r *http.Request) {
	repo := r.Context().Value(apiContext.Repo).(*models.Repo)

	result, err := h.composer.Compose(r.Context(), repo.OwnerUserID)
	if err != nil {
		if err == settlement.ErrNoFunderWallet {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Attach a wallet address before composing a batch", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to compose payout batch", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

type batchUpdateRequest struct {
	Action      string   `json:"action"`
	PayoutIDs   []string `json:"payout_ids"`
	TxHash      string   `json:"tx_hash,omitempty"`
	BlockNumber int64    `json:"block_number,omitempty"`
}

type batchUpdateResponse struct {
	Updated int `json:"updated"`
}

// Update reports the fate of a previously composed batch. "confirm"
// records the broadcast hash and settles the linked bounties;
// "mark-confirmed" attaches the mined block number.
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if len(req.PayoutIDs) == 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "payout_ids is required", nil)
		return
	}

	var updated int
	var err error
	switch req.Action {
	case "confirm":
		if req.TxHash == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "tx_hash is required for confirm", nil)
			return
		}
		updated, err = h.composer.ConfirmBroadcast(req.PayoutIDs, req.TxHash)
	case "mark-confirmed":
		if req.BlockNumber <= 0 {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "block_number is required for mark-confirmed", nil)
			return
		}
		updated, err = h.composer.MarkConfirmed(req.PayoutIDs, req.BlockNumber)
	default:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown action", map[string]string{"action": req.Action})
		return
	}

	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Batch update failed", map[string]interface{}{"updated": updated})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(batchUpdateResponse{Updated: updated})
}
