// Command operator runs the chance-staking-operator node: the beacon
// mirror, epoch controller, and draw controller loops described in
// internal/beacon, internal/epoch, and internal/draw, supervised by
// internal/supervisor.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/danvaneijck/chance-staking-operator/internal/beacon"
	"github.com/danvaneijck/chance-staking-operator/internal/chainclient"
	"github.com/danvaneijck/chance-staking-operator/internal/config"
	"github.com/danvaneijck/chance-staking-operator/internal/draw"
	"github.com/danvaneijck/chance-staking-operator/internal/epoch"
	"github.com/danvaneijck/chance-staking-operator/internal/identity"
	"github.com/danvaneijck/chance-staking-operator/internal/log"
	"github.com/danvaneijck/chance-staking-operator/internal/secrets"
	"github.com/danvaneijck/chance-staking-operator/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// Config errors happen before logging is set up; print to stderr
		// directly, per spec §7's "main propagates only at startup".
		os.Stderr.WriteString("startup failed: " + err.Error() + "\n")
		return 1
	}

	log.SetDefault(log.New(log.LevelFromString(cfg.LogLevel)))
	logger := log.Module("main")

	id, err := identity.FromMnemonic(cfg.Mnemonic, cfg.Network.ChainID())
	if err != nil {
		logger.Error("derive operator identity", "error", err)
		return 1
	}
	logger.Info("operator identity derived", "address", id.Address(), "chain_id", id.ChainID())

	transport, err := chainclient.DialGRPC(cfg.GRPCEndpoint)
	if err != nil {
		logger.Error("dial chain grpc endpoint", "error", err)
		return 1
	}
	defer transport.Close()

	signer := chainclient.NewIdentitySigner(id)
	chain := chainclient.New(transport, signer)

	drand := beacon.NewDrandClient(cfg.DrandAPIURL, cfg.DrandChainHash)
	mirror := beacon.New(chain, drand, cfg.DrandOracleAddress)

	holderSource := chainclient.NewBankHolderSource(transport)
	cache := epoch.NewCache()
	epochCtrl := epoch.New(chain, cfg.StakingHubAddress, cfg.TokenDenom, holderSource, nil, cache)

	secretStore, err := secrets.Load(cfg.SecretsPath)
	if err != nil {
		logger.Error("load pending secrets store", "error", err)
		return 1
	}
	drawCtrl := draw.New(chain, cfg.StakingHubAddress, cfg.RewardDistributorAddress, cfg.DrandOracleAddress, mirror, drand, cache, secretStore)

	lifecycle := supervisor.NewLifecycleManager()
	health := supervisor.NewHealthChecker(5 * cfg.DrawCheckInterval)

	beaconLoop := supervisor.NewLoop(mirror, cfg.DrandPollInterval)
	epochLoop := supervisor.NewLoop(epochCtrl, cfg.EpochCheckInterval)
	drawLoop := supervisor.NewLoop(drawCtrl, cfg.DrawCheckInterval)

	// Start order follows the roles' data dependency, not an arbitrary
	// priority: the draw loop reads the epoch loop's published snapshot and
	// both read rounds the beacon loop mirrors on-chain.
	roles := []struct {
		role supervisor.Role
		loop *supervisor.Loop
	}{
		{supervisor.RoleBeacon, beaconLoop},
		{supervisor.RoleEpoch, epochLoop},
		{supervisor.RoleDraw, drawLoop},
	}
	for _, r := range roles {
		if err := lifecycle.Register(r.role, r.loop); err != nil {
			logger.Error("register service", "service", r.loop.Name(), "error", err)
			return 1
		}
		health.Register(r.loop.Name(), r.loop)
	}

	if errs := lifecycle.StartAll(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("service failed to start", "error", e)
		}
		return 1
	}
	logger.Info("operator node started", "services", lifecycle.RunningCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	for _, e := range lifecycle.StopAll() {
		logger.Warn("service failed to stop cleanly", "error", e)
	}
	if !health.Overall() {
		logger.Warn("one or more services were unhealthy at shutdown")
	}

	// The node is a daemon; spec §6 is explicit that it never exits 0 — a
	// signal-triggered stop is still a stop, not a successful completion of
	// any unit of work, and there is no graceful-drain exit path that would
	// warrant one.
	return 1
}
