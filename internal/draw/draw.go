// Package draw implements the draw controller (spec §4.7, component C7):
// the commit-reveal lottery state machine. Each iteration sweeps
// draw_history reveal-then-commit, so a freshly committed draw never blocks
// a reveal that is already due (spec §4.7's ordering rule).
package draw

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/danvaneijck/chance-staking-operator/internal/beacon"
	"github.com/danvaneijck/chance-staking-operator/internal/chainclient"
	"github.com/danvaneijck/chance-staking-operator/internal/crypto"
	"github.com/danvaneijck/chance-staking-operator/internal/epoch"
	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/log"
	"github.com/danvaneijck/chance-staking-operator/internal/merkle"
	"github.com/danvaneijck/chance-staking-operator/internal/secrets"
	"github.com/danvaneijck/chance-staking-operator/internal/types"
)

// historyWindow is the number of recent draw_history records read each
// sweep (spec §4.7: "window of ~20").
const historyWindow = 20

// defaultDrandLeadRounds is the default Δ added to the external beacon's latest
// round to choose a commit's target round: ~30s of lead time at a 3s beacon
// period (spec §4.7).
const defaultDrandLeadRounds = 10

// ChainClient is the subset of chainclient.Client the draw controller
// needs.
type ChainClient interface {
	Query(ctx context.Context, contract string, msg, out any) error
	Execute(ctx context.Context, contract string, msg any, funds []chainclient.Coin) (string, error)
}

// ExternalBeacon is the subset of beacon.DrandClient the draw controller
// needs to learn the external beacon's latest round. Mirroring a specific
// round onto the oracle goes through *beacon.Mirror directly.
type ExternalBeacon interface {
	Latest(ctx context.Context) (types.BeaconRound, error)
}

// Controller drives the reveal/expire and commit sweeps.
type Controller struct {
	chain           ChainClient
	hubAddress      string
	distributorAddr string
	oracleAddress   string
	mirror          *beacon.Mirror
	drand           ExternalBeacon
	cache           *epoch.Cache
	store           *secrets.Store
	drandLeadRounds uint64
	log             *log.Logger
}

// New constructs a Controller.
func New(chain ChainClient, hubAddress, distributorAddr, oracleAddress string, mirror *beacon.Mirror, drand ExternalBeacon, cache *epoch.Cache, store *secrets.Store) *Controller {
	return &Controller{
		chain:           chain,
		hubAddress:      hubAddress,
		distributorAddr: distributorAddr,
		oracleAddress:   oracleAddress,
		mirror:          mirror,
		drand:           drand,
		cache:           cache,
		store:           store,
		drandLeadRounds: defaultDrandLeadRounds,
		log:             log.Module("draw"),
	}
}

type drawHistoryResponse struct {
	Draws []types.DrawRecord `json:"draws"`
}

func (c *Controller) readHistory(ctx context.Context) ([]types.DrawRecord, error) {
	var resp drawHistoryResponse
	err := c.chain.Query(ctx, c.distributorAddr, map[string]any{
		"draw_history": map[string]any{"limit": historyWindow},
	}, &resp)
	return resp.Draws, err
}

// RunOnce performs one draw-controller iteration: reveal/expire sweep, then
// commit sweep (spec §4.7).
func (c *Controller) RunOnce(ctx context.Context) error {
	if err := c.revealSweep(ctx); err != nil {
		return fmt.Errorf("reveal sweep: %w", err)
	}
	if err := c.commitSweep(ctx); err != nil {
		return fmt.Errorf("commit sweep: %w", err)
	}
	return nil
}

// revealSweep walks recent committed draws, expiring past-deadline ones and
// revealing those whose target round is ready.
func (c *Controller) revealSweep(ctx context.Context) error {
	history, err := c.readHistory(ctx)
	if err != nil {
		return fmt.Errorf("read draw history: %w", err)
	}

	now := timeNowNs()
	for _, rec := range history {
		if rec.Status != types.DrawCommitted {
			continue
		}

		if now > rec.RevealDeadlineNs {
			if err := c.expire(ctx, rec.ID); err != nil {
				c.log.Warn("expire draw failed", "draw_id", rec.ID, "error", err)
			}
			continue
		}

		secret, ok := c.store.Get(rec.ID)
		if !ok {
			c.log.Info("no local secret for committed draw, skipping", "draw_id", rec.ID)
			continue
		}

		external, err := c.drand.Latest(ctx)
		if err != nil {
			c.log.Warn("fetch external beacon latest failed", "draw_id", rec.ID, "error", err)
			continue
		}
		if external.Round < rec.TargetDrandRound {
			continue
		}

		if err := c.reveal(ctx, rec, secret); err != nil {
			c.log.Warn("reveal draw failed", "draw_id", rec.ID, "error", err)
		}
	}
	return nil
}

func (c *Controller) expire(ctx context.Context, drawID uint64) error {
	if _, err := c.chain.Execute(ctx, c.distributorAddr, map[string]any{
		"expire_draw": map[string]any{"id": drawID},
	}, nil); err != nil {
		// A second expire of an already-expired draw is transient (spec
		// §4.7); log and move on rather than treating it as fatal for the
		// iteration.
		return fmt.Errorf("%w: expire draw %d: %v", errs.Protocol, drawID, err)
	}
	if err := c.store.Delete(drawID); err != nil {
		c.log.Warn("delete local secret after expire failed", "draw_id", drawID, "error", err)
	}
	return nil
}

type beaconQueryResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
}

// reveal executes the reveal path of spec §4.7's numbered steps 1-7.
func (c *Controller) reveal(ctx context.Context, rec types.DrawRecord, secret []byte) error {
	if err := c.mirror.SubmitRound(ctx, rec.TargetDrandRound); err != nil {
		return fmt.Errorf("ensure target round on chain: %w", err)
	}

	var stored beaconQueryResponse
	if err := c.chain.Query(ctx, c.oracleAddress, map[string]any{
		"beacon": map[string]any{"round": rec.TargetDrandRound},
	}, &stored); err != nil {
		return fmt.Errorf("%w: fetch stored beacon for round %d: %v", errs.Protocol, rec.TargetDrandRound, err)
	}
	randomness, err := hex.DecodeString(stored.Randomness)
	if err != nil {
		return fmt.Errorf("%w: decode stored randomness: %v", errs.Protocol, err)
	}

	snap := c.cache.Get()
	if snap == nil {
		return fmt.Errorf("%w: no cached snapshot for draw %d", errs.StateLoss, rec.ID)
	}

	ticket, err := crypto.WinningTicket(randomness, secret, snap.TotalWeight)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.Protocol, err)
	}

	starts, ends := snap.CumulativeSlices()
	winnerIdx, err := merkle.FindWinnerIndex(starts, ends, ticket)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.Protocol, err)
	}

	leaves := make([][32]byte, len(snap.Entries))
	for i, e := range snap.Entries {
		leaves[i] = crypto.LeafHash(e.Address, e.CumulativeStart, e.CumulativeEnd)
	}
	tree, err := merkle.Build(leaves, crypto.NodeHash)
	if err != nil {
		return fmt.Errorf("%w: rebuild snapshot tree: %v", errs.Protocol, err)
	}
	proof, err := tree.Proof(winnerIdx)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.Protocol, err)
	}

	winner := snap.Entries[winnerIdx]
	proofHex := make([]string, len(proof))
	for i, p := range proof {
		proofHex[i] = hex.EncodeToString(p[:])
	}

	msg := map[string]any{
		"reveal_draw": map[string]any{
			"draw_id":                 rec.ID,
			"operator_secret_hex":     hex.EncodeToString(secret),
			"winner_address":          winner.Address,
			"winner_cumulative_start": winner.CumulativeStart.String(),
			"winner_cumulative_end":   winner.CumulativeEnd.String(),
			"merkle_proof":            proofHex,
		},
	}
	if _, err := c.chain.Execute(ctx, c.distributorAddr, msg, nil); err != nil {
		return fmt.Errorf("submit reveal_draw: %w", err)
	}

	if err := c.store.Delete(rec.ID); err != nil {
		c.log.Warn("delete local secret after reveal failed", "draw_id", rec.ID, "error", err)
	}
	c.log.Info("revealed draw", "draw_id", rec.ID, "winner", winner.Address)
	return nil
}

// commitSweep implements spec §4.7's commit sweep over both draw types.
func (c *Controller) commitSweep(ctx context.Context) error {
	var state types.EpochState
	if err := c.chain.Query(ctx, c.hubAddress, map[string]any{"epoch_state": struct{}{}}, &state); err != nil {
		return fmt.Errorf("read epoch state: %w", err)
	}
	if !state.SnapshotFinalized {
		return nil
	}

	for _, drawType := range []types.DrawType{types.DrawRegular, types.DrawBig} {
		if err := c.tryCommit(ctx, drawType, state.CurrentEpoch); err != nil {
			c.log.Warn("commit attempt failed", "draw_type", drawType, "error", err)
		}
	}
	return nil
}

func (c *Controller) tryCommit(ctx context.Context, drawType types.DrawType, epochNum uint64) error {
	var balances types.PoolBalances
	if err := c.chain.Query(ctx, c.distributorAddr, map[string]any{"pool_balances": struct{}{}}, &balances); err != nil {
		return fmt.Errorf("read pool balances: %w", err)
	}
	var cfg types.DistributorConfig
	if err := c.chain.Query(ctx, c.distributorAddr, map[string]any{"config": struct{}{}}, &cfg); err != nil {
		return fmt.Errorf("read distributor config: %w", err)
	}

	pool, reward, err := poolAndReward(drawType, balances, cfg)
	if err != nil {
		return err
	}
	if pool.Cmp(reward) < 0 {
		return nil
	}

	history, err := c.readHistory(ctx)
	if err != nil {
		return fmt.Errorf("read draw history: %w", err)
	}
	for _, rec := range history {
		if rec.DrawType == drawType && rec.Epoch == epochNum && rec.Status == types.DrawCommitted {
			return nil // idempotent guard: already committed this epoch
		}
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	commit := crypto.CommitOf(secret)

	external, err := c.drand.Latest(ctx)
	if err != nil {
		return fmt.Errorf("fetch external beacon latest: %w", err)
	}
	leadRounds := c.drandLeadRounds
	if cfg.DrandLeadRounds > 0 {
		leadRounds = cfg.DrandLeadRounds
	}
	target := external.Round + leadRounds

	msg := map[string]any{
		"commit_draw": map[string]any{
			"draw_type":          drawType,
			"operator_commit":    commit,
			"target_drand_round": target,
			"reward_amount":      reward.String(),
			"epoch":              epochNum,
		},
	}
	txHash, err := c.chain.Execute(ctx, c.distributorAddr, msg, nil)
	if err != nil {
		return fmt.Errorf("submit commit_draw: %w", err)
	}

	nextID, err := c.nextDrawID(ctx)
	if err != nil {
		// Without the new draw's id we cannot persist its secret; this is a
		// protocol-level inconsistency (commit succeeded, bookkeeping did
		// not) left to surface as a state-loss warning rather than retried,
		// since retrying would re-commit.
		return fmt.Errorf("%w: commit_draw %s succeeded (tx %s) but could not resolve new draw id: %v", errs.StateLoss, drawType, txHash, err)
	}
	if err := c.store.Put(nextID, secret); err != nil {
		return fmt.Errorf("%w: persist secret for draw %d: %v", errs.StateLoss, nextID, err)
	}
	c.log.Info("committed draw", "draw_type", drawType, "draw_id", nextID, "target_round", target)
	return nil
}

// nextDrawID resolves the id of the draw just committed by re-reading
// history and taking the most recent committed record's id.
func (c *Controller) nextDrawID(ctx context.Context) (uint64, error) {
	history, err := c.readHistory(ctx)
	if err != nil {
		return 0, err
	}
	var maxID uint64
	var found bool
	for _, rec := range history {
		if rec.Status == types.DrawCommitted && rec.ID >= maxID {
			maxID = rec.ID
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no committed draw found in history")
	}
	return maxID, nil
}

func poolAndReward(drawType types.DrawType, balances types.PoolBalances, cfg types.DistributorConfig) (pool, reward *uint256.Int, err error) {
	var poolStr, rewardStr string
	switch drawType {
	case types.DrawRegular:
		poolStr, rewardStr = balances.Regular, cfg.RegularReward
	case types.DrawBig:
		poolStr, rewardStr = balances.Big, cfg.BigReward
	default:
		return nil, nil, fmt.Errorf("unknown draw type %q", drawType)
	}

	pool = new(uint256.Int)
	if err := pool.SetFromDecimal(poolStr); err != nil {
		return nil, nil, fmt.Errorf("parse pool balance %q: %w", poolStr, err)
	}
	reward = new(uint256.Int)
	if err := reward.SetFromDecimal(rewardStr); err != nil {
		return nil, nil, fmt.Errorf("parse reward amount %q: %w", rewardStr, err)
	}
	return pool, reward, nil
}

// Name implements supervisor.Runner.
func (c *Controller) Name() string { return "draw" }

// timeNowNs is a seam so tests can stub wall-clock time.
var timeNowNs = func() int64 { return time.Now().UnixNano() }
