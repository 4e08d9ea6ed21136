package settlement

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// newClaimToken returns a single-use bearer token for a custodial
// payment. 256 bits from crypto/rand; unguessable by construction.
func newClaimToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the host is broken; fall back to
		// a uuid pair rather than handing out a short token.
		return "clm_" + uuid.New().String() + uuid.New().String()
	}
	return "clm_" + hex.EncodeToString(buf)
}

// newWebhookSecret generates the per-repository HMAC secret minted
// when an installation registers a repo.
func newWebhookSecret() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "whsec_" + uuid.New().String()
	}
	return "whsec_" + hex.EncodeToString(buf)
}
