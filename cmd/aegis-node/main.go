package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/aegis/api"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/circuits/vkey"
	"github.com/vocdoni/aegis/config"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/nullifiers"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/service"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/web3"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// envPrefix is prepended to the upper-cased flag name to read its value
// from the environment, e.g. AEGIS_API_PORT for --api.port.
const envPrefix = "AEGIS_"

func main() {
	logLevel := flag.String("log.level", log.LogLevelInfo, "log level (debug, info, warn, error)")
	logOutput := flag.String("log.output", "stdout", "log output (stdout, stderr or a file path)")
	dataDir := flag.String("datadir", defaultDataDir(), "directory of the node database")
	buildDir := flag.String("build", config.DefaultBuildDir, "directory of the compiled circuits and keys")
	treeDepth := flag.Int("tree.depth", config.DefaultTreeDepth, "depth of the commitment tree")
	apiHost := flag.String("api.host", config.DefaultAPIHost, "API listen address")
	apiPort := flag.Int("api.port", config.DefaultAPIPort, "API listen port")
	writableTree := flag.Bool("api.writable-tree", false, "allow inserting leaves through the API (only without web3 sync)")
	w3rpc := flag.String("web3.rpc", "", "web3 rpc endpoint, chain sync and relaying are disabled if empty")
	poolAddr := flag.String("web3.pool", "", "address of the pool contract")
	startBlock := flag.Uint64("web3.start-block", 0, "block where the pool contract was deployed")
	confirmations := flag.Uint64("web3.confirmations", config.DefaultConfirmations, "blocks to wait before applying pool events")
	syncInterval := flag.Duration("web3.sync-interval", config.DefaultSyncInterval, "interval between pool event polls")
	privKey := flag.String("relayer.privkey", "", "hex private key of the relayer account, relaying is disabled if empty")
	relayInterval := flag.Duration("relayer.interval", config.DefaultRelayInterval, "interval between relay rounds")
	gasLimit := flag.Uint64("relayer.gas-limit", web3.DefaultGasLimit, "gas limit of the relayed transactions")
	mockProver := flag.Bool("prover.mock", false, "use a mock prover that returns fixed proofs (testing only)")
	verifyProofs := flag.Bool("prover.verify", false, "verify every generated proof before returning it")
	provingTimeout := flag.Duration("prover.timeout", config.DefaultProvingTimeout, "maximum time to generate a proof")
	download := flag.Bool("artifacts.download", false, "download the remote circuit artifacts before starting")
	flag.Parse()
	loadEnv()

	log.Init(*logLevel, *logOutput, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *writableTree && *w3rpc != "" {
		log.Fatal("the tree cannot be writable when it is synced from the pool contract")
	}

	database, err := metadb.New(db.TypePebble, *dataDir)
	if err != nil {
		log.Fatalf("cannot open database at %s: %v", *dataDir, err)
	}
	stg := storage.New(prefixeddb.NewPrefixedDatabase(database, []byte("q/")))
	defer stg.Close()

	commitments, err := tree.Open(prefixeddb.NewPrefixedDatabase(database, []byte("t/")), *treeDepth)
	if err != nil {
		log.Fatal(err)
	}
	spent, err := nullifiers.New(prefixeddb.NewPrefixedDatabase(database, []byte("n/")))
	if err != nil {
		log.Fatal(err)
	}

	// circuits and proving backend
	registry := circuits.NewRegistry(*buildDir)
	keys := vkey.NewKeys()
	var backend prover.Backend
	if *mockProver {
		log.Warn("using the mock prover, generated proofs are not valid")
		backend = prover.NewMockBackend()
	} else {
		if *download {
			if err := service.DownloadArtifacts(config.DefaultArtifactsTimeout, registry); err != nil {
				log.Fatal(err)
			}
		}
		if err := registry.LoadAll(ctx); err != nil {
			log.Fatal(err)
		}
		if err := keys.LoadAll(registry); err != nil {
			log.Fatal(err)
		}
		rapidsnark := prover.NewRapidsnark(registry)
		rapidsnark.VerifyProofs = *verifyProofs
		backend = rapidsnark
	}
	builder := transaction.NewBuilder(backend).
		SetSpentChecker(spent).
		SetTimeout(*provingTimeout)

	// chain sync and relayer
	var treeSync *service.TreeSync
	var relayer *service.RelayerService
	if *w3rpc != "" {
		if !common.IsHexAddress(*poolAddr) {
			log.Fatalf("invalid pool contract address %q", *poolAddr)
		}
		pool := common.HexToAddress(*poolAddr)
		client, chainID, err := web3.Dial(ctx, *w3rpc)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()
		log.Infow("web3 connected", "rpc", *w3rpc, "chainId", chainID, "pool", pool.Hex())

		from := *startBlock
		if next, ok, err := stg.SyncedBlock(); err != nil {
			log.Fatal(err)
		} else if ok && next > from {
			from = next
		}
		watcher := web3.NewPoolWatcher(client, pool, from)
		watcher.SetConfirmations(*confirmations)
		treeSync = service.NewTreeSync(watcher, commitments, spent, stg, *syncInterval)
		if err := treeSync.Start(ctx); err != nil {
			log.Fatal(err)
		}

		if *privKey != "" {
			submitter, err := web3.NewRelayer(client, chainID, pool, *privKey)
			if err != nil {
				log.Fatal(err)
			}
			submitter.SetGasLimit(*gasLimit)
			log.Infow("relayer account", "address", submitter.AccountAddress().Hex())
			relayer = service.NewRelayer(stg, submitter, *relayInterval)
			if err := relayer.Start(ctx); err != nil {
				log.Fatal(err)
			}
		}
	}

	apiService := service.NewAPI(&api.APIConfig{
		Host:         *apiHost,
		Port:         *apiPort,
		Storage:      stg,
		Tree:         commitments,
		Builder:      builder,
		Keys:         keys,
		Spent:        spent,
		WritableTree: *writableTree,
	})
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	host, port := apiService.HostPort()
	log.Infow("node started", "api", host, "port", port, "treeDepth", commitments.Depth(),
		"leaves", commitments.Size(), "root", commitments.Root().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	apiService.Stop()
	if relayer != nil {
		relayer.Stop()
	}
	if treeSync != nil {
		treeSync.Stop()
		if err := treeSync.Err(); err != nil {
			log.Warnw("tree sync halted", "error", err.Error())
		}
	}
}

// loadEnv sets every flag not given in the command line from its
// environment variable, if present.
func loadEnv() {
	flag.VisitAll(func(f *flag.Flag) {
		if f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(f.Name))
		if v, ok := os.LookupEnv(name); ok {
			if err := flag.Set(f.Name, v); err != nil {
				log.Fatalf("invalid value of %s: %v", name, err)
			}
		}
	})
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return config.DefaultDataDir
	}
	return filepath.Join(home, config.DefaultDataDir)
}
