// Command lightchain-node runs a single validator/observer process for the
// hybrid PoS+VRF+PoW consensus core (spec.md §10).
//
// Grounded on the teacher's cmd/lightchain/main.go (flag-driven bootstrap:
// parse node identity and network settings, build the chain, wait on
// SIGINT/SIGTERM for graceful shutdown) and on luxfi-consensus's
// cmd/consensus/main.go cobra root-command-plus-subcommands layout, which
// this rewrite adopts in place of the teacher's flat flag.Parse() set: a
// validator process has three genuinely distinct operations (run, generate
// keys, initialize a genesis allocation file), which cobra subcommands
// name directly instead of overloading one flag set.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sanketsaagar/lightchain-vrf/internal/config"
	"github.com/sanketsaagar/lightchain-vrf/internal/cryptoprim"
	"github.com/sanketsaagar/lightchain-vrf/internal/genesis"
	"github.com/sanketsaagar/lightchain-vrf/internal/node"
	"github.com/sanketsaagar/lightchain-vrf/internal/storage"
)

const appName = "lightchain-node"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Hybrid PoS+VRF+PoW consensus node",
	}
	cmd.AddCommand(startCmd(), keysCmd(), genesisCmd())
	return cmd
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Validator key management"}
	cmd.AddCommand(keysGenerateCmd())
	return cmd
}

func genesisCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "genesis", Short: "Genesis allocation management"}
	cmd.AddCommand(genesisInitCmd())
	return cmd
}

func startCmd() *cobra.Command {
	var configPath string
	var genesisAllocPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the consensus node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath, genesisAllocPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "./config.yaml", "path to the node's YAML configuration")
	cmd.Flags().StringVar(&genesisAllocPath, "genesis-alloc", "", "path to a genesis allocation JSON file, consulted only if the chain has never been bootstrapped")
	return cmd
}

func runStart(configPath, genesisAllocPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	selfPK, selfSK, err := loadOrGenerateKeys(cfg.Security.KeystorePath)
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}

	kv, err := openKV(*cfg)
	if err != nil {
		return fmt.Errorf("open storage engine: %w", err)
	}

	n := node.New(*cfg, selfPK, selfSK, kv, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	allocations, err := loadGenesisAllocations(genesisAllocPath)
	if err != nil {
		return fmt.Errorf("load genesis allocations: %w", err)
	}
	if err := n.Bootstrap(ctx, allocations); err != nil {
		return fmt.Errorf("bootstrap genesis: %w", err)
	}

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	log.WithField("listen_addr", cfg.Network.ListenAddr).Info("lightchain-node running, press ctrl-c to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return n.Stop()
}

func openKV(cfg config.Config) (storage.KV, error) {
	switch cfg.Storage.Engine {
	case "memory", "":
		return storage.NewMemKV(), nil
	default:
		return nil, fmt.Errorf("storage engine %q has no wired KV implementation yet", cfg.Storage.Engine)
	}
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logrus.NewEntry(logger)
}

func keysGenerateCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new Ed25519 validator keypair and write it to a keystore file",
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, sk, err := cryptoprim.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if err := writeKeystore(out, sk); err != nil {
				return err
			}
			text, _ := pk.MarshalText()
			fmt.Printf("public key: %s\nkeystore written to: %s\n", text, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "./validator.key", "output path for the generated private key")
	return cmd
}

func genesisInitCmd() *cobra.Command {
	var out string
	var pubkeyHex string
	var balance uint64
	var stake uint64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a genesis allocation file seeding a single account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pk cryptoprim.PubKey
			if err := pk.UnmarshalText([]byte(pubkeyHex)); err != nil {
				return fmt.Errorf("parse --pubkey: %w", err)
			}
			allocations := []genesis.Allocation{{PublicKey: pk, Balance: balance, StakeAmount: stake}}
			data, err := json.MarshalIndent(allocations, "", "  ")
			if err != nil {
				return fmt.Errorf("encode genesis allocations: %w", err)
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("genesis allocation written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "./genesis.json", "output path for the genesis allocation file")
	cmd.Flags().StringVar(&pubkeyHex, "pubkey", "", "hex-encoded Ed25519 public key to allocate to")
	cmd.Flags().Uint64Var(&balance, "balance", 0, "genesis balance for the allocated account")
	cmd.Flags().Uint64Var(&stake, "stake", 0, "genesis stake for the allocated account")
	cmd.MarkFlagRequired("pubkey")
	return cmd
}

func loadGenesisAllocations(path string) ([]genesis.Allocation, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var allocations []genesis.Allocation
	if err := json.Unmarshal(data, &allocations); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return allocations, nil
}

func writeKeystore(path string, sk ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(sk)), 0o600)
}

// loadOrGenerateKeys reads an existing keystore file, or generates and
// persists a fresh keypair if none exists yet (spec.md §10: a node must
// have a stable identity across restarts).
func loadOrGenerateKeys(path string) (cryptoprim.PubKey, ed25519.PrivateKey, error) {
	if path == "" {
		path = "./validator.key"
	}

	data, err := os.ReadFile(path)
	if err == nil {
		skBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return cryptoprim.PubKey{}, nil, fmt.Errorf("decode keystore %s: %w", path, err)
		}
		if len(skBytes) != ed25519.PrivateKeySize {
			return cryptoprim.PubKey{}, nil, fmt.Errorf("keystore %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(skBytes))
		}
		sk := ed25519.PrivateKey(skBytes)
		var pk cryptoprim.PubKey
		copy(pk[:], sk.Public().(ed25519.PublicKey))
		return pk, sk, nil
	}
	if !os.IsNotExist(err) {
		return cryptoprim.PubKey{}, nil, fmt.Errorf("read keystore %s: %w", path, err)
	}

	pk, sk, err := cryptoprim.GenerateKey()
	if err != nil {
		return cryptoprim.PubKey{}, nil, fmt.Errorf("generate key: %w", err)
	}
	if err := writeKeystore(path, sk); err != nil {
		return cryptoprim.PubKey{}, nil, fmt.Errorf("write keystore %s: %w", path, err)
	}
	return pk, sk, nil
}
