package chainclient

import (
	"encoding/json"
	"fmt"

	"github.com/danvaneijck/chance-staking-operator/internal/identity"
)

// Transaction envelope constants, bit-exact with the target chain (spec
// §6): empty memo, fixed fee, fixed gas limit.
const (
	envelopeFeeAmount = "1500000000000000"
	envelopeFeeDenom  = "inj"
	envelopeGasLimit  = 3_800_000
)

type executeContractMsg struct {
	Sender   string          `json:"sender"`
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    []Coin          `json:"funds"`
}

type txFee struct {
	Amount []Coin `json:"amount"`
	Gas    uint64 `json:"gas"`
}

// signDoc is the canonical document whose Keccak-256 hash is signed,
// following the "sign bytes" pattern go-ethereum/cosmos-family chains use:
// a deterministic JSON rendering of every field the signature commits to.
type signDoc struct {
	ChainID       string               `json:"chain_id"`
	AccountNumber uint64               `json:"account_number"`
	Sequence      uint64               `json:"sequence"`
	Fee           txFee                `json:"fee"`
	Memo          string               `json:"memo"`
	Msgs          []executeContractMsg `json:"msgs"`
}

// signedTx is the broadcast envelope: the sign doc, the 65-byte signature,
// and the signer's uncompressed public key (so the chain can recover and
// verify without a prior key registration lookup).
type signedTx struct {
	Doc       signDoc `json:"doc"`
	Signature []byte  `json:"signature"`
	PublicKey []byte  `json:"public_key"`
}

// IdentitySigner adapts an identity.OperatorIdentity into chainclient's
// Signer interface, producing the fixed transaction envelope of spec §6.
type IdentitySigner struct {
	id *identity.OperatorIdentity
}

// NewIdentitySigner wraps id for use as a chainclient.Signer.
func NewIdentitySigner(id *identity.OperatorIdentity) *IdentitySigner {
	return &IdentitySigner{id: id}
}

// Address implements Signer.
func (s *IdentitySigner) Address() string { return s.id.Address() }

// SignTx implements Signer: it builds the canonical sign doc, hashes it
// with Keccak-256, signs the digest, and serializes the signed envelope.
func (s *IdentitySigner) SignTx(accountNumber, sequence uint64, contract string, msg json.RawMessage, funds []Coin) ([]byte, error) {
	if funds == nil {
		funds = []Coin{}
	}
	doc := signDoc{
		ChainID:       s.id.ChainID(),
		AccountNumber: accountNumber,
		Sequence:      sequence,
		Fee: txFee{
			Amount: []Coin{{Denom: envelopeFeeDenom, Amount: envelopeFeeAmount}},
			Gas:    envelopeGasLimit,
		},
		Memo: "",
		Msgs: []executeContractMsg{{
			Sender:   s.id.Address(),
			Contract: contract,
			Msg:      msg,
			Funds:    funds,
		}},
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal sign doc: %w", err)
	}
	digest := identity.Keccak256(docBytes)

	sig, err := s.id.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign doc: %w", err)
	}

	tx := signedTx{Doc: doc, Signature: sig, PublicKey: s.id.PublicKey()}
	txBytes, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal signed tx: %w", err)
	}
	return txBytes, nil
}
