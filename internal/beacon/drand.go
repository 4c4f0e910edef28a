// Package beacon implements the beacon mirror (spec §4.5, component C5):
// polling the external drand-style randomness service and proactively
// relaying new rounds onto the on-chain oracle contract.
package beacon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/types"
)

// DrandClient fetches rounds from the external beacon HTTP service.
type DrandClient struct {
	apiURL     string
	chainHash  string
	httpClient *http.Client
}

// NewDrandClient constructs a DrandClient against apiURL/chainHash (spec
// §6's DRAND_API_URL / DRAND_CHAIN_HASH configuration).
func NewDrandClient(apiURL, chainHash string) *DrandClient {
	return &DrandClient{
		apiURL:     apiURL,
		chainHash:  chainHash,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type drandHTTPRound struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// Latest fetches GET {apiURL}/{chainHash}/public/latest.
func (c *DrandClient) Latest(ctx context.Context) (types.BeaconRound, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/%s/public/latest", c.apiURL, c.chainHash))
}

// Round fetches GET {apiURL}/{chainHash}/public/{round}.
func (c *DrandClient) Round(ctx context.Context, round uint64) (types.BeaconRound, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/%s/public/%d", c.apiURL, c.chainHash, round))
}

func (c *DrandClient) fetch(ctx context.Context, url string) (types.BeaconRound, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.BeaconRound{}, fmt.Errorf("%w: build request: %v", errs.Transport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.BeaconRound{}, fmt.Errorf("%w: fetch %s: %v", errs.Transport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.BeaconRound{}, fmt.Errorf("%w: %s returned status %d", errs.Transport, url, resp.StatusCode)
	}

	var raw drandHTTPRound
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.BeaconRound{}, fmt.Errorf("%w: decode response from %s: %v", errs.Transport, url, err)
	}

	randomness, err := hex.DecodeString(raw.Randomness)
	if err != nil {
		return types.BeaconRound{}, fmt.Errorf("%w: decode randomness hex: %v", errs.Transport, err)
	}
	signature, err := hex.DecodeString(raw.Signature)
	if err != nil {
		return types.BeaconRound{}, fmt.Errorf("%w: decode signature hex: %v", errs.Transport, err)
	}

	return types.BeaconRound{Round: raw.Round, Randomness: randomness, Signature: signature}, nil
}
