package workers

import (
	"time"

	"github.com/rs/zerolog/log"

	"bountypay/internal/platform/repositories"
)

// Sweeper retires custodial payments that sat unclaimed past their
// deadline. Expiry is also checked lazily at claim time; the sweep just
// keeps pending listings honest.
type Sweeper struct {
	pending *repositories.PendingPaymentRepository
}

func NewSweeper(pending *repositories.PendingPaymentRepository) *Sweeper {
	return &Sweeper{pending: pending}
}

func (s *Sweeper) SweepExpiredPayments() {
	n, err := s.pending.ExpireBefore(time.Now().Unix())
	if err != nil {
		log.Error().Err(err).Msg("pending payment sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int64("expired", n).Msg("expired unclaimed pending payments")
	}
}
