// Package identity derives and holds the operator's process-wide signing
// identity (spec §3's OperatorIdentity): a private key, its derived address
// and public key, and the chain id it signs for. Initialized once at
// startup from a mnemonic; never mutated afterward (spec §9's "global
// process-scoped state" note — identity is a read-only singleton value
// passed to every component rather than reconstructed or mutated in place).
package identity

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"fmt"

	bip39 "github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
)

// masterKeyHMACKey is the standard BIP-32 "Bitcoin seed" HMAC key used to
// derive a master extended key from a BIP-39 seed.
var masterKeyHMACKey = []byte("Bitcoin seed")

// OperatorIdentity is the operator's signing identity for one chain id.
// Every field is set once at construction and never mutated.
type OperatorIdentity struct {
	privateKey *ecdsa.PrivateKey
	address    string
	publicKey  []byte
	chainID    string
}

// FromMnemonic derives an OperatorIdentity from a BIP-39 mnemonic. The
// private key is the secp256k1 master key of the mnemonic's seed (spec §9
// simplifies full BIP-44 path derivation to the seed's master key, which is
// sufficient for a single, fixed signing identity per node). The derived
// address is rendered the way go-ethereum renders a secp256k1 public key's
// address, matching Injective's EVM-compatible (eth_secp256k1) account
// model.
func FromMnemonic(mnemonic, chainID string) (*OperatorIdentity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", errs.Config)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: derive seed: %v", errs.Config, err)
	}

	mac := hmac.New(sha512.New, masterKeyHMACKey)
	mac.Write(seed)
	sum := mac.Sum(nil)
	keyBytes := sum[:32] // left 32 bytes: master private key; right 32: chain code (unused, single-key derivation)

	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: derive private key: %v", errs.Config, err)
	}

	addr := crypto.PubkeyToAddress(privateKey.PublicKey)
	pub := crypto.FromECDSAPub(&privateKey.PublicKey)

	return &OperatorIdentity{
		privateKey: privateKey,
		address:    addr.Hex(),
		publicKey:  pub,
		chainID:    chainID,
	}, nil
}

// Address returns the operator's derived address.
func (o *OperatorIdentity) Address() string { return o.address }

// PublicKey returns the derived public key bytes (uncompressed, 65 bytes).
func (o *OperatorIdentity) PublicKey() []byte { return append([]byte(nil), o.publicKey...) }

// ChainID returns the chain id this identity signs for.
func (o *OperatorIdentity) ChainID() string { return o.chainID }

// Sign computes a Keccak-based ECDSA signature over digest (spec §6's
// "Keccak-based ECDSA on the canonical sign-bytes" transaction envelope
// requirement). digest must already be the 32-byte message hash; callers
// are responsible for building the canonical sign-bytes and hashing them
// with Keccak256 before calling Sign.
func (o *OperatorIdentity) Sign(digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], o.privateKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return sig, nil
}

// Keccak256 hashes data with Keccak-256, the hash function the transaction
// envelope's sign-bytes use (spec §6).
func Keccak256(data ...[]byte) [32]byte {
	return crypto.Keccak256Hash(data...)
}
