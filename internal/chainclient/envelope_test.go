package chainclient

import (
	"encoding/json"
	"testing"

	"github.com/danvaneijck/chance-staking-operator/internal/identity"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestIdentitySignerProducesDecodableEnvelope(t *testing.T) {
	id, err := identity.FromMnemonic(testMnemonic, "injective-888")
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	signer := NewIdentitySigner(id)

	txBytes, err := signer.SignTx(3, 9, "inj1hub", json.RawMessage(`{"advance_epoch":{}}`), nil)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	var tx signedTx
	if err := json.Unmarshal(txBytes, &tx); err != nil {
		t.Fatalf("unmarshal signed tx: %v", err)
	}
	if tx.Doc.AccountNumber != 3 || tx.Doc.Sequence != 9 {
		t.Errorf("doc account/sequence = %d/%d, want 3/9", tx.Doc.AccountNumber, tx.Doc.Sequence)
	}
	if tx.Doc.Fee.Gas != envelopeGasLimit {
		t.Errorf("gas = %d, want %d", tx.Doc.Fee.Gas, envelopeGasLimit)
	}
	if len(tx.Doc.Fee.Amount) != 1 || tx.Doc.Fee.Amount[0].Amount != envelopeFeeAmount {
		t.Errorf("fee amount = %+v, want %s%s", tx.Doc.Fee.Amount, envelopeFeeAmount, envelopeFeeDenom)
	}
	if tx.Doc.Memo != "" {
		t.Errorf("memo = %q, want empty", tx.Doc.Memo)
	}
	if len(tx.Signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(tx.Signature))
	}
	if len(tx.Doc.Msgs) != 1 || tx.Doc.Msgs[0].Contract != "inj1hub" {
		t.Errorf("msgs = %+v", tx.Doc.Msgs)
	}
}
