package chain

import "context"

// SignRequest asks the external signing service for one signed
// transfer under a delegated authorization. The service holds the
// keys; this system never sees them.
type SignRequest struct {
	AuthorizationID string
	FunderAddress   string
	Network         string
	Call            Call
	Nonce           uint64
}

// Signer is the external signing service boundary. Implementations may
// be HSM-backed and slow; callers must treat SignTransfer as blocking
// I/O.
type Signer interface {
	SignTransfer(ctx context.Context, req SignRequest) (rawTx string, err error)
}

// Broadcaster is the RPC boundary: submit raw transactions and read
// account sequence numbers.
type Broadcaster interface {
	Submit(ctx context.Context, rawTx string) (txHash string, err error)
	SequenceNumber(ctx context.Context, address string) (uint64, error)
}
