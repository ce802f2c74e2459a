package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/fedchain/node/pkg/bridge"
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/config"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/csv"
	"github.com/fedchain/node/pkg/reserved"
	"github.com/fedchain/node/pkg/storage"
	"github.com/fedchain/node/pkg/vetomint"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		genesisPath = flag.String("genesis", "", "path to genesis YAML (overrides GENESIS_PATH)")
		dataDir     = flag.String("data-dir", "", "data directory (overrides DATA_DIR)")
		demo        = flag.Bool("demo", false, "run an in-process federation demo instead of waiting for peers")
		demoHeights = flag.Int("demo-heights", 5, "number of heights to finalize in demo mode")
	)
	flag.Parse()

	log.Println("========================================")
	log.Println("fedchaind - federated chain node")
	log.Println("========================================")

	// Phase 1: Configuration
	log.Println("[1/5] Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: failed to load configuration: %v", err)
	}
	if *genesisPath != "" {
		cfg.GenesisPath = *genesisPath
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.StorageDataDir = *dataDir
	}
	if !*demo {
		if err := cfg.Validate(); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	}
	log.Printf("      node=%s storage=%s data=%s", cfg.NodeName, cfg.StorageBackend, cfg.DataDir)

	logger := newLogger(cfg.LogLevel)

	// Phase 2: Storage
	log.Println("[2/5] Opening checkpoint storage...")
	store, closeStore, err := openBlobStore(cfg, *demo)
	if err != nil {
		log.Fatalf("FATAL: failed to open storage: %v", err)
	}
	defer closeStore()
	checkpointer := storage.NewCheckpointer(store)

	// Phase 3: Chain state
	log.Println("[3/5] Bootstrapping chain state...")
	var nd *node
	if *demo {
		nd, err = newDemoNode(cfg, logger, checkpointer)
	} else {
		nd, err = newNode(cfg, logger, checkpointer)
	}
	if err != nil {
		log.Fatalf("FATAL: failed to bootstrap chain state: %v", err)
	}
	log.Printf("      height=%d members=%d", nd.verifier.GetHeader().Height, len(nd.verifier.GetReservedState().Members))

	// Phase 4: Health and metrics servers
	log.Println("[4/5] Starting health and metrics servers...")
	health := newHealthStatus(cfg.NodeName)
	health.SetHeight(nd.verifier.GetHeader().Height)
	stopServers := startServers(cfg, health, logger)
	defer stopServers()

	// Phase 5: Driver loop
	log.Println("[5/5] Starting consensus driver...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		if *demo {
			done <- nd.runDemo(*demoHeights, health)
		} else {
			done <- nd.runIdle(health)
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("FATAL: driver loop failed: %v", err)
		}
		log.Println("driver loop finished")
	case sig := <-sigCh:
		log.Printf("received %v, shutting down", sig)
	}

	log.Println("shutdown complete")
}

// newLogger builds the structured consensus-path logger; the boot banner
// above stays on stdlib log, same split the operator sees in the logs.
func newLogger(level string) cmtlog.Logger {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	opt, err := cmtlog.AllowLevel(strings.ToLower(level))
	if err != nil {
		opt = cmtlog.AllowInfo()
	}
	return cmtlog.NewFilter(logger, opt)
}

func openBlobStore(cfg *config.Config, demo bool) (storage.BlobStore, func(), error) {
	if demo || cfg.StorageBackend == "memory" {
		return storage.NewMemoryBlobStore(), func() {}, nil
	}
	db, err := dbm.NewDB(cfg.StorageBackendName, dbm.GoLevelDBBackend, cfg.StorageDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s at %s: %w", cfg.StorageBackendName, cfg.StorageDataDir, err)
	}
	return storage.NewCometBFTBlobStore(db), func() { _ = db.Close() }, nil
}

// node owns one height's CSV verifier and consensus bridge, plus the key
// material this process controls.
type node struct {
	cfg    *config.Config
	logger cmtlog.Logger

	checkpointer *storage.Checkpointer

	verifier  *csv.Verifier
	bridge    *bridge.Bridge
	lastProof *commit.FinalizationProofRef

	// thisNodeKey is nil for a non-validating observer.
	thisNodeKey *crypto.PublicKey
	privateKey  *crypto.PrivateKey

	// demo-mode only: the whole federation's keys, standing in for
	// network-delivered votes in this single-process demo.
	federation map[crypto.PublicKey]crypto.PrivateKey
}

// newNode bootstraps from the genesis file, or restores the latest
// checkpoint when one exists.
func newNode(cfg *config.Config, logger cmtlog.Logger, checkpointer *storage.Checkpointer) (*node, error) {
	n := &node{cfg: cfg, logger: logger, checkpointer: checkpointer}

	if cfg.PrivateKeyPath != "" {
		raw, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		sk, err := crypto.PrivateKeyFromHex(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, err
		}
		pk, err := crypto.PublicKeyFromPrivate(sk)
		if err != nil {
			return nil, err
		}
		n.privateKey = &sk
		n.thisNodeKey = &pk
	}

	if v, ok, err := checkpointer.LoadLatest(); err != nil {
		return nil, err
	} else if ok {
		logger.Info("restored checkpoint", "height", v.GetHeader().Height)
		n.verifier = v
		n.lastProof = v.GetHeader().PrevBlockFinalizationProof
	} else {
		genesis, err := config.LoadGenesis(cfg.GenesisPath)
		if err != nil {
			return nil, err
		}
		rs, err := genesis.ReservedState()
		if err != nil {
			return nil, err
		}
		header := genesisHeader(rs)
		n.verifier = csv.New(header, rs)
		logger.Info("initialized from genesis", "chain", rs.GenesisInfo.Name, "members", len(rs.Members))
	}

	n.rebuildBridge(nowMilli())
	return n, nil
}

// genesisHeader derives the height-0 header from the genesis reserved
// state; it has no parent and no finalization proof.
func genesisHeader(rs reserved.State) commit.BlockHeader {
	set := rs.GetValidatorSet()
	var author crypto.PublicKey
	if len(set) > 0 {
		author = set[0].PublicKey
	}
	return commit.BlockHeader{
		Author:           author,
		Height:           0,
		Timestamp:        rs.GenesisInfo.Timestamp,
		CommitMerkleRoot: commit.CalculateCommitMerkleRoot(nil),
		ValidatorSet:     set,
		Version:          rs.Version,
	}
}

func (n *node) consensusParams() vetomint.ConsensusParams {
	return vetomint.ConsensusParams{
		TimeoutMS:                 n.cfg.ConsensusTimeoutMS,
		RepeatRoundForFirstLeader: n.cfg.RepeatRoundForFirstLeader,
	}
}

// rebuildBridge discards the previous height's consensus instance and
// builds a fresh one for the height after the current finalized header.
func (n *node) rebuildBridge(now int64) {
	n.bridge = bridge.New(n.verifier.GetHeader(), n.consensusParams(), now, n.thisNodeKey)
}

// applyAndCheckpoint feeds one commit through CSV and, on acceptance,
// persists the verifier's whole state for this height.
func (n *node) applyAndCheckpoint(c commit.Commit) error {
	if err := n.verifier.Apply(c); err != nil {
		commitsRejected.WithLabelValues(kindLabel(c.Kind)).Inc()
		return err
	}
	commitsAccepted.Inc()
	return n.checkpointer.Save(n.verifier.GetHeader().Height, n.verifier)
}

func kindLabel(k commit.Kind) string {
	switch k {
	case commit.KindBlock:
		return "block"
	case commit.KindTransaction:
		return "transaction"
	case commit.KindAgenda:
		return "agenda"
	case commit.KindAgendaProof:
		return "agenda_proof"
	case commit.KindExtraAgendaTransaction:
		return "extra_agenda_transaction"
	case commit.KindChatLog:
		return "chat_log"
	default:
		return "unknown"
	}
}
