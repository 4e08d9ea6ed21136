package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "bountypay/internal/api/context"
	"bountypay/internal/engine/settlement"
	"bountypay/internal/pkg/errors"
	"bountypay/internal/platform/auth"
	"bountypay/internal/platform/repositories"
)

type ClaimHandler struct {
	claims   *settlement.ClaimService
	userRepo *repositories.UserRepository
}

func NewClaimHandler(claims *settlement.ClaimService, userRepo *repositories.UserRepository) *ClaimHandler {
	return &ClaimHandler{claims: claims, userRepo: userRepo}
}

// Claim settles every pending payment owed to the authenticated user.
// The token in the path identifies the claim; the bearer identity is
// what authorizes it.
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	token := params.ByName("token")

	claimant, err := h.userRepo.GetByID(claims.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load user", nil)
		return
	}
	if claimant == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unknown user", nil)
		return
	}

	result, err := h.claims.Claim(r.Context(), token, claimant)
	if err != nil {
		switch err {
		case settlement.ErrClaimNotFound:
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Claim token not found", nil)
		case settlement.ErrAlreadyClaimed:
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeConflict, "Payment has already been claimed", nil)
		case settlement.ErrClaimCancelled:
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeConflict, "Payment was cancelled by the funder", nil)
		case settlement.ErrClaimExpired:
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeConflict, "Payment has expired", nil)
		case settlement.ErrWrongRecipient:
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Payment is intended for a different account", nil)
		case settlement.ErrRecipientNoWallet:
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Attach a wallet address before claiming", nil)
		default:
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Claim failed", nil)
		}
		return
	}

	// Partial success still settles money; only a full wipeout is an
	// operation failure.
	if result.AllFailed() {
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeBroadcastFailed, "No payment could be settled", result)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}
