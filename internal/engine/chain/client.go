package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignerClient talks to the external signing service over HTTP. The
// service validates the authorization server-side and returns a raw
// signed transaction; key material never crosses this boundary.
type SignerClient struct {
	baseURL string
	client  *http.Client
}

func NewSignerClient(baseURL string) *SignerClient {
	return &SignerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type signTransferRequest struct {
	AuthorizationID string `json:"authorization_id"`
	FunderAddress   string `json:"funder_address"`
	Network         string `json:"network"`
	To              string `json:"to"`
	Data            string `json:"data"`
	Value           string `json:"value"`
	Nonce           uint64 `json:"nonce"`
}

type signTransferResponse struct {
	RawTx string `json:"raw_tx"`
	Error string `json:"error,omitempty"`
}

func (c *SignerClient) SignTransfer(ctx context.Context, req SignRequest) (string, error) {
	body := signTransferRequest{
		AuthorizationID: req.AuthorizationID,
		FunderAddress:   req.FunderAddress,
		Network:         req.Network,
		To:              req.Call.To,
		Data:            req.Call.Data,
		Value:           req.Call.Value,
		Nonce:           req.Nonce,
	}

	var resp signTransferResponse
	if err := c.post(ctx, "/v1/sign/transfer", body, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("signer rejected request: %s", resp.Error)
	}
	if resp.RawTx == "" {
		return "", fmt.Errorf("signer returned empty transaction")
	}
	return resp.RawTx, nil
}

func (c *SignerClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("signer returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RPCClient is the node boundary for broadcasting and sequence reads.
type RPCClient struct {
	baseURL string
	client  *http.Client
}

func NewRPCClient(baseURL string) *RPCClient {
	return &RPCClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type submitRequest struct {
	RawTx string `json:"raw_tx"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

func (c *RPCClient) Submit(ctx context.Context, rawTx string) (string, error) {
	payload, err := json.Marshal(submitRequest{RawTx: rawTx})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("rpc returned %d: %s", resp.StatusCode, string(raw))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("broadcast rejected: %s", out.Error)
	}
	return out.TxHash, nil
}

type sequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

func (c *RPCClient) SequenceNumber(ctx context.Context, address string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/accounts/"+address+"/sequence", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("rpc returned %d: %s", resp.StatusCode, string(raw))
	}

	var out sequenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Sequence, nil
}
