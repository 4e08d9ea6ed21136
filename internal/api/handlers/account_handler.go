package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/engine/chain"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/models"
	"bountypay/internal/platform/repositories"
)

// AccountHandler covers the caller's own profile: wallet attachment and
// delegated signing authorizations.
type AccountHandler struct {
	userRepo *repositories.UserRepository
	keyRepo  *repositories.AccessKeyRepository
}

func NewAccountHandler(userRepo *repositories.UserRepository, keyRepo *repositories.AccessKeyRepository) *AccountHandler {
	return &AccountHandler{userRepo: userRepo, keyRepo: keyRepo}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	user, err := h.userRepo.GetByID(claims.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load user", nil)
		return
	}
	if user == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type setWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// SetWallet attaches a receiving wallet. This is the step that unlocks
// pending custodial payments for a contributor.
func (h *AccountHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req setWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if !chain.ValidAddress(req.WalletAddress) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "wallet_address is not a valid address", nil)
		return
	}

	if err := h.userRepo.SetWalletAddress(claims.UserID, req.WalletAddress); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update wallet", nil)
		return
	}

	user, _ := h.userRepo.GetByID(claims.UserID)
	writeJSON(w, http.StatusOK, user)
}

type createAccessKeyRequest struct {
	TokenAddress string `json:"token_address"`
	LimitAmount  int64  `json:"limit_amount"`
}

// CreateAccessKey grants the signer a reusable spending authorization
// capped at limit_amount. Auto-pay draws from these.
func (h *AccountHandler) CreateAccessKey(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req createAccessKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.LimitAmount <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "limit_amount must be positive", nil)
		return
	}
	if !chain.ValidAddress(req.TokenAddress) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "token_address is not a valid address", nil)
		return
	}

	now := time.Now().Unix()
	key := &models.AccessKey{
		ID:           "key_" + uuid.New().String(),
		FunderUserID: claims.UserID,
		TokenAddress: req.TokenAddress,
		LimitAmount:  req.LimitAmount,
		Status:       models.AccessKeyStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.keyRepo.Create(key); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create access key", nil)
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// RevokeAccessKey invalidates an authorization. In-flight spends that
// already passed the status check are unaffected.
func (h *AccountHandler) RevokeAccessKey(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	key, err := h.keyRepo.GetByID(params.ByName("key_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load access key", nil)
		return
	}
	if key == nil || key.FunderUserID != claims.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Access key not found", nil)
		return
	}

	ok, err := h.keyRepo.Revoke(key.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to revoke access key", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Access key is not active", map[string]string{"status": key.Status})
		return
	}

	updated, _ := h.keyRepo.GetByID(key.ID)
	writeJSON(w, http.StatusOK, updated)
}
