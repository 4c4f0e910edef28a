package chainclient

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/snapshot"
)

// methodDenomOwners is the bank module's paginated holder-enumeration
// query, the chain-native source for snapshot.HolderSource (spec §4.3's
// "paginated enumeration of a token's holder set").
const methodDenomOwners = "/cosmos.bank.v1beta1.Query/DenomOwners"

type denomOwnersRequest struct {
	Denom      string          `json:"denom"`
	Pagination *paginationPage `json:"pagination,omitempty"`
}

type paginationPage struct {
	Key   string `json:"key,omitempty"` // base64
	Limit uint64 `json:"limit,omitempty"`
}

type denomOwnerEntry struct {
	Address string     `json:"address"`
	Balance coinAmount `json:"balance"`
}

type coinAmount struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type denomOwnersResponse struct {
	DenomOwners []denomOwnerEntry `json:"denom_owners"`
	Pagination  struct {
		NextKey string `json:"next_key"`
	} `json:"pagination"`
}

// BankHolderSource implements snapshot.HolderSource against the bank
// module's DenomOwners query over the same gRPC connection used for
// contract queries.
type BankHolderSource struct {
	conn *GRPCTransport
}

// NewBankHolderSource constructs a BankHolderSource over an already-dialed
// transport (spec §4.3, component C3's external collaborator).
func NewBankHolderSource(conn *GRPCTransport) *BankHolderSource {
	return &BankHolderSource{conn: conn}
}

// Holders implements snapshot.HolderSource.
func (b *BankHolderSource) Holders(ctx context.Context, denom string, key []byte) (snapshot.HolderPage, error) {
	req := denomOwnersRequest{Denom: denom}
	if len(key) > 0 {
		req.Pagination = &paginationPage{Key: b64(key)}
	}

	var resp denomOwnersResponse
	if err := b.conn.conn.Invoke(ctx, methodDenomOwners, &req, &resp); err != nil {
		return snapshot.HolderPage{}, fmt.Errorf("%w: denom owners invoke: %v", errs.Transport, err)
	}

	holders := make([]snapshot.DenomHolder, 0, len(resp.DenomOwners))
	for _, entry := range resp.DenomOwners {
		balance := new(uint256.Int)
		if err := balance.SetFromDecimal(entry.Balance.Amount); err != nil {
			return snapshot.HolderPage{}, fmt.Errorf("%w: parse balance for %s: %v", errs.Transport, entry.Address, err)
		}
		holders = append(holders, snapshot.DenomHolder{Address: entry.Address, Balance: balance})
	}

	var nextKey []byte
	if resp.Pagination.NextKey != "" {
		decoded, err := unb64(resp.Pagination.NextKey)
		if err != nil {
			return snapshot.HolderPage{}, fmt.Errorf("%w: decode next_key: %v", errs.Transport, err)
		}
		nextKey = decoded
	}

	return snapshot.HolderPage{Holders: holders, NextKey: nextKey}, nil
}
