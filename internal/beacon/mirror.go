package beacon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/danvaneijck/chance-staking-operator/internal/chainclient"
	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/log"
	"github.com/danvaneijck/chance-staking-operator/internal/types"
)

// ChainClient is the subset of chainclient.Client the mirror needs. Defined
// as an interface here so tests can substitute a fake.
type ChainClient interface {
	Query(ctx context.Context, contract string, msg, out any) error
	Execute(ctx context.Context, contract string, msg any, funds []chainclient.Coin) (string, error)
}

// Mirror drives the beacon mirror loop (spec §4.5, component C5).
type Mirror struct {
	chain         ChainClient
	drand         *DrandClient
	oracleAddress string
	log           *log.Logger
}

// New constructs a Mirror.
func New(chain ChainClient, drand *DrandClient, oracleAddress string) *Mirror {
	return &Mirror{
		chain:         chain,
		drand:         drand,
		oracleAddress: oracleAddress,
		log:           log.Module("beacon"),
	}
}

type latestRoundResponse struct {
	LatestRound uint64 `json:"latest_round"`
}

// onChainLatestRound reads the oracle's stored latest round.
func (m *Mirror) onChainLatestRound(ctx context.Context) (uint64, error) {
	var resp latestRoundResponse
	if err := m.chain.Query(ctx, m.oracleAddress, map[string]any{"latest_round": struct{}{}}, &resp); err != nil {
		return 0, err
	}
	return resp.LatestRound, nil
}

type beaconQueryResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// hasRound reports whether the oracle already stores the given round.
func (m *Mirror) hasRound(ctx context.Context, round uint64) (bool, error) {
	var resp beaconQueryResponse
	err := m.chain.Query(ctx, m.oracleAddress, map[string]any{"beacon": map[string]any{"round": round}}, &resp)
	if err != nil {
		if errors.Is(err, errs.Transport) {
			// A missing round is indistinguishable from a query-layer "not
			// found" at this boundary; treat any query failure here as
			// "not yet stored" and let the subsequent submit be the source
			// of truth (a duplicate submit is the chain's concern to
			// reject, not ours to predict).
			return false, nil
		}
		return false, err
	}
	return resp.Round == round, nil
}

// submitRoundMsg builds the submit_beacon execute message (spec §6).
func submitRoundMsg(round types.BeaconRound) map[string]any {
	return map[string]any{
		"submit_beacon": map[string]any{
			"round":         round.Round,
			"signature_hex": hex.EncodeToString(round.Signature),
		},
	}
}

// SubmitRound ensures round is present on the oracle, fetching it from the
// external beacon and submitting it if absent. Used both by RunOnce's
// proactive mirroring and, on demand, by the draw controller's reveal path
// (spec §4.5's "submit_specific_round").
func (m *Mirror) SubmitRound(ctx context.Context, round uint64) error {
	present, err := m.hasRound(ctx, round)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	record, err := m.drand.Round(ctx, round)
	if err != nil {
		return err
	}

	if _, err := m.chain.Execute(ctx, m.oracleAddress, submitRoundMsg(record), nil); err != nil {
		return fmt.Errorf("submit beacon round %d: %w", round, err)
	}
	m.log.Info("submitted beacon round", "round", round)
	return nil
}

// RunOnce performs a single beacon-mirror iteration (spec §4.5): if the
// external beacon's latest round is ahead of the on-chain oracle, submit it.
func (m *Mirror) RunOnce(ctx context.Context) error {
	onChain, err := m.onChainLatestRound(ctx)
	if err != nil {
		return fmt.Errorf("read on-chain latest round: %w", err)
	}

	external, err := m.drand.Latest(ctx)
	if err != nil {
		return fmt.Errorf("fetch external latest round: %w", err)
	}

	if external.Round <= onChain {
		return nil
	}

	if err := m.SubmitRound(ctx, external.Round); err != nil {
		return err
	}
	return nil
}

// Name implements supervisor.Runner.
func (m *Mirror) Name() string { return "beacon" }
