package draw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/beacon"
	"github.com/danvaneijck/chance-staking-operator/internal/chainclient"
	"github.com/danvaneijck/chance-staking-operator/internal/epoch"
	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/secrets"
	"github.com/danvaneijck/chance-staking-operator/internal/snapshot"
	"github.com/danvaneijck/chance-staking-operator/internal/types"
	"github.com/holiman/uint256"
)

// fakeChain is a stateful ChainClient double shared by beacon.Mirror and
// draw.Controller in these tests — both talk to the same fake oracle and
// distributor.
type fakeChain struct {
	epochState        types.EpochState
	history           []types.DrawRecord
	poolBalances      types.PoolBalances
	distributorConfig types.DistributorConfig
	beaconPresent     map[uint64]bool
	executions        []map[string]any
}

func newFakeChain() *fakeChain {
	return &fakeChain{beaconPresent: make(map[uint64]bool)}
}

func (f *fakeChain) Query(ctx context.Context, contract string, msg, out any) error {
	decoded, err := remarshalToMap(msg)
	if err != nil {
		return err
	}

	if _, ok := decoded["epoch_state"]; ok {
		return remarshal(f.epochState, out)
	}
	if v, ok := decoded["beacon"]; ok {
		round := uint64(v.(map[string]any)["round"].(float64))
		if !f.beaconPresent[round] {
			return errs.Transport
		}
		return remarshal(map[string]any{"round": round, "randomness": "aa"}, out)
	}
	if _, ok := decoded["draw_history"]; ok {
		return remarshal(map[string]any{"draws": f.history}, out)
	}
	if _, ok := decoded["pool_balances"]; ok {
		return remarshal(f.poolBalances, out)
	}
	if _, ok := decoded["config"]; ok {
		return remarshal(f.distributorConfig, out)
	}
	return nil
}

func (f *fakeChain) Execute(ctx context.Context, contract string, msg any, funds []chainclient.Coin) (string, error) {
	decoded, err := remarshalToMap(msg)
	if err != nil {
		return "", err
	}
	f.executions = append(f.executions, decoded)

	if submit, ok := decoded["submit_beacon"].(map[string]any); ok {
		round := uint64(submit["round"].(float64))
		f.beaconPresent[round] = true
	}
	return "0xhash", nil
}

func remarshal(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func remarshalToMap(src any) (map[string]any, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(raw, &m)
	return m, err
}

// drandServerAt serves every /ch/public/{round-or-latest} request with the
// same fixed round/randomness, which is all these tests need: the target
// round is known in advance and the server's only job is to make it
// fetchable.
func drandServerAt(round uint64, randomness string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ch/public/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"round": round, "randomness": randomness, "signature": "bb"})
	})
	return httptest.NewServer(mux)
}

func newStore(t *testing.T) *secrets.Store {
	t.Helper()
	store, err := secrets.Load(t.TempDir() + "/pending_secrets.json")
	if err != nil {
		t.Fatalf("secrets.Load: %v", err)
	}
	return store
}

func TestRevealSweepHappyPath(t *testing.T) {
	chain := newFakeChain()
	chain.epochState = types.EpochState{SnapshotFinalized: false} // commit sweep no-ops
	chain.history = []types.DrawRecord{{
		ID:               5,
		DrawType:         types.DrawRegular,
		Epoch:            2,
		Status:           types.DrawCommitted,
		TargetDrandRound: 1010,
		RevealDeadlineNs: timeNowNs() + int64(time.Hour),
	}}

	srv := drandServerAt(1010, "aa")
	defer srv.Close()
	drand := beacon.NewDrandClient(srv.URL, "ch")
	mirror := beacon.New(chain, drand, "inj1oracle")

	cache := epoch.NewCache()
	snap, err := snapshot.Build(context.Background(), staticHolders{{Address: "A", Balance: uint256.NewInt(100)}}, "factory/denom", nil)
	if err != nil {
		t.Fatalf("snapshot.Build: %v", err)
	}
	cache.Publish(snap)

	store := newStore(t)
	if err := store.Put(5, make([]byte, 32)); err != nil {
		t.Fatalf("store.Put: %v", err)
	}

	ctrl := New(chain, "inj1hub", "inj1distributor", "inj1oracle", mirror, drand, cache, store)
	if err := ctrl.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(chain.executions) != 2 {
		t.Fatalf("executions = %d, want 2 (submit_beacon, reveal_draw): %+v", len(chain.executions), chain.executions)
	}
	if _, ok := chain.executions[0]["submit_beacon"]; !ok {
		t.Errorf("first execution = %+v, want submit_beacon", chain.executions[0])
	}
	reveal, ok := chain.executions[1]["reveal_draw"].(map[string]any)
	if !ok {
		t.Fatalf("second execution = %+v, want reveal_draw", chain.executions[1])
	}
	if reveal["winner_address"] != "A" {
		t.Errorf("winner_address = %v, want A", reveal["winner_address"])
	}

	if _, ok := store.Get(5); ok {
		t.Errorf("secret for draw 5 should be deleted after reveal")
	}
}

func TestRevealSweepExpiresPastDeadline(t *testing.T) {
	chain := newFakeChain()
	chain.epochState = types.EpochState{SnapshotFinalized: false}
	chain.history = []types.DrawRecord{{
		ID:               9,
		DrawType:         types.DrawBig,
		Epoch:            1,
		Status:           types.DrawCommitted,
		TargetDrandRound: 500,
		RevealDeadlineNs: timeNowNs() - int64(time.Hour),
	}}

	srv := drandServerAt(500, "aa")
	defer srv.Close()
	drand := beacon.NewDrandClient(srv.URL, "ch")
	mirror := beacon.New(chain, drand, "inj1oracle")

	store := newStore(t)
	if err := store.Put(9, make([]byte, 32)); err != nil {
		t.Fatalf("store.Put: %v", err)
	}

	ctrl := New(chain, "inj1hub", "inj1distributor", "inj1oracle", mirror, drand, epoch.NewCache(), store)
	if err := ctrl.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(chain.executions) != 1 {
		t.Fatalf("executions = %d, want 1 (expire_draw): %+v", len(chain.executions), chain.executions)
	}
	if _, ok := chain.executions[0]["expire_draw"]; !ok {
		t.Errorf("execution = %+v, want expire_draw", chain.executions[0])
	}
	if _, ok := store.Get(9); ok {
		t.Errorf("secret for draw 9 should be deleted after expiry")
	}
}

func TestCommitSweepSkipsWhenPoolUnderfunded(t *testing.T) {
	chain := newFakeChain()
	chain.epochState = types.EpochState{SnapshotFinalized: true, CurrentEpoch: 3}
	chain.poolBalances = types.PoolBalances{Regular: "10", Big: "10"}
	chain.distributorConfig = types.DistributorConfig{RegularReward: "1000", BigReward: "1000", DrandLeadRounds: 10}

	srv := drandServerAt(100, "aa")
	defer srv.Close()
	drand := beacon.NewDrandClient(srv.URL, "ch")
	mirror := beacon.New(chain, drand, "inj1oracle")
	store := newStore(t)

	ctrl := New(chain, "inj1hub", "inj1distributor", "inj1oracle", mirror, drand, epoch.NewCache(), store)
	if err := ctrl.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(chain.executions) != 0 {
		t.Fatalf("executions = %d, want 0 when pool underfunded", len(chain.executions))
	}
}

func TestCommitSweepIdempotentGuard(t *testing.T) {
	chain := newFakeChain()
	chain.epochState = types.EpochState{SnapshotFinalized: true, CurrentEpoch: 3}
	chain.poolBalances = types.PoolBalances{Regular: "5000", Big: "5000"}
	chain.distributorConfig = types.DistributorConfig{RegularReward: "1000", BigReward: "1000", DrandLeadRounds: 10}
	farFuture := timeNowNs() + int64(time.Hour)
	chain.history = []types.DrawRecord{
		{ID: 1, DrawType: types.DrawRegular, Epoch: 3, Status: types.DrawCommitted, RevealDeadlineNs: farFuture},
		{ID: 2, DrawType: types.DrawBig, Epoch: 3, Status: types.DrawCommitted, RevealDeadlineNs: farFuture},
	}

	srv := drandServerAt(100, "aa")
	defer srv.Close()
	drand := beacon.NewDrandClient(srv.URL, "ch")
	mirror := beacon.New(chain, drand, "inj1oracle")
	store := newStore(t)

	ctrl := New(chain, "inj1hub", "inj1distributor", "inj1oracle", mirror, drand, epoch.NewCache(), store)
	if err := ctrl.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	for _, e := range chain.executions {
		if _, ok := e["commit_draw"]; ok {
			t.Fatalf("commit_draw should not be submitted when already committed this epoch: %+v", chain.executions)
		}
	}
}

// staticHolders is a single-page snapshot.HolderSource fixture.
type staticHolders []snapshot.DenomHolder

func (s staticHolders) Holders(ctx context.Context, denom string, key []byte) (snapshot.HolderPage, error) {
	if key != nil {
		return snapshot.HolderPage{}, nil
	}
	return snapshot.HolderPage{Holders: s}, nil
}
