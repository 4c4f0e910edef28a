// Package chainclient implements the chain client (spec §4.4, component
// C4): stateless contract queries and signed contract executions, with all
// writes serialized through a single-slot FIFO queue so that exactly one
// execute is ever in flight for the operator identity (spec §5's strongest
// concurrency invariant).
package chainclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/log"
)

// Coin is a single denom/amount pair attached to an execute call.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Transport is the chain RPC/gRPC transport this client is built on. It is
// an external collaborator per spec §1 — its interface is specified here,
// its implementation (GRPCTransport, in transport.go) is the node's own
// adapter onto a real gRPC connection.
type Transport interface {
	// Query performs a stateless smart-contract query. payload is the raw
	// (pre-base64) JSON query message; the returned bytes are the raw
	// (already base64-decoded) JSON response.
	Query(ctx context.Context, contract string, payload []byte) ([]byte, error)

	// AccountInfo returns the operator's current account number and
	// sequence, read immediately before signing (spec §5).
	AccountInfo(ctx context.Context, address string) (accountNumber, sequence uint64, err error)

	// BroadcastTx submits signed transaction bytes and returns the result.
	// code is zero on success; non-zero code is a TxRejected condition.
	BroadcastTx(ctx context.Context, txBytes []byte) (txHash string, code uint32, rawLog string, err error)
}

// Signer produces signed transaction bytes for a single contract
// message. One concrete implementation wraps internal/identity's
// OperatorIdentity.
type Signer interface {
	Address() string
	SignTx(accountNumber, sequence uint64, contract string, msg json.RawMessage, funds []Coin) ([]byte, error)
}

// Client is the operator node's sole entry point for chain reads and
// writes.
type Client struct {
	transport Transport
	signer    Signer
	writeSlot chan struct{} // capacity-1 FIFO mutex, spec §9
	log       *log.Logger
}

// New constructs a Client. The write slot starts loaded with a single
// token so the first Execute call does not block.
func New(transport Transport, signer Signer) *Client {
	c := &Client{
		transport: transport,
		signer:    signer,
		writeSlot: make(chan struct{}, 1),
		log:       log.Module("chainclient"),
	}
	c.writeSlot <- struct{}{}
	return c
}

// Query performs a stateless read against contract, marshaling msg to JSON
// and unmarshaling the response into out. Reads bypass the write mutex and
// may be called concurrently (spec §4.4).
func (c *Client) Query(ctx context.Context, contract string, msg, out any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal query message: %w", err)
	}

	resp, err := c.transport.Query(ctx, contract, payload)
	if err != nil {
		return fmt.Errorf("%w: query %s: %v", errs.Transport, contract, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("%w: decode query response: %v", errs.Transport, err)
	}
	return nil
}

// Execute submits a signed contract message and returns the resulting
// transaction hash. At most one Execute is in flight for the operator
// identity at any time: callers queue on a capacity-1 channel, acquired for
// the entire read-sequence/sign/broadcast window (spec §5).
func (c *Client) Execute(ctx context.Context, contract string, msg any, funds []Coin) (string, error) {
	select {
	case <-c.writeSlot:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { c.writeSlot <- struct{}{} }()

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal execute message: %w", err)
	}

	accountNumber, sequence, err := c.transport.AccountInfo(ctx, c.signer.Address())
	if err != nil {
		return "", fmt.Errorf("%w: account info: %v", errs.Transport, err)
	}

	txBytes, err := c.signer.SignTx(accountNumber, sequence, contract, payload, funds)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	txHash, code, rawLog, err := c.transport.BroadcastTx(ctx, txBytes)
	if err != nil {
		return "", fmt.Errorf("%w: broadcast: %v", errs.Transport, err)
	}
	if code != 0 {
		c.log.Error("tx rejected", "contract", contract, "code", code, "raw_log", rawLog)
		return "", fmt.Errorf("%w: code=%d log=%s", errs.TxRejected, code, rawLog)
	}

	return txHash, nil
}

// b64 and unb64 are small helpers kept here because both the query and
// execute envelopes carry a base64-encoded JSON payload field (spec §4.4,
// §6) even though this package's own Query/Execute signatures work in
// plain JSON — the base64 framing is transport.go's concern, at the
// boundary with the wire.
func b64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
