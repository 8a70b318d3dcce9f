package config

import (
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"

	"github.com/cockroachdb/errors"
)

const envPrefix = "POWBLOCKS_"

type Config struct {
	Chain   ChainConfig
	Log     LogConfig
	Serve   string // HTTP listen address. empty = no server
	Export  string // write the demo chain to this dump file
	Verify  string // load and validate this dump file instead of running the demo
	Profile string // cpu|mem|empty
}

type ChainConfig struct {
	Difficulty    int
	Hash          string
	Workers       int
	MaxIterations uint64
	MineTimeout   time.Duration
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

func Default() Config {
	return Config{
		Chain: ChainConfig{
			Difficulty: 2,
			Hash:       digest.SHA256.String(),
			Workers:    1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Parse layers environment variables and then flags over the defaults
func Parse(args []string, output io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("pow-blocks", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		difficulty    = fs.Int("difficulty", envOrInt("DIFFICULTY", cfg.Chain.Difficulty), "Leading zero hex characters required of each mined block")
		hash          = fs.String("hash", envOr("HASH", cfg.Chain.Hash), "Hash algorithm: sha256|sha256d|blake2b|blake3")
		workers       = fs.Int("workers", envOrInt("WORKERS", cfg.Chain.Workers), "Goroutines searching nonces while mining")
		maxIterations = fs.Uint64("max-iterations", envOrUint("MAX_ITERATIONS", cfg.Chain.MaxIterations), "Give up mining a block after this many hashes (0 = never)")
		mineTimeout   = fs.Duration("mine-timeout", envOrDuration("MINE_TIMEOUT", cfg.Chain.MineTimeout), "Give up mining a block after this long (0 = never)")

		logLevel  = fs.String("log.level", envOr("LOG_LEVEL", cfg.Log.Level), "Log level: debug|info|warn|error")
		logFormat = fs.String("log.format", envOr("LOG_FORMAT", cfg.Log.Format), "Log format: text|json")

		serve   = fs.String("serve", envOr("SERVE", cfg.Serve), "Serve the chain over HTTP on this address, e.g. 127.0.0.1:8855")
		export  = fs.String("export", envOr("EXPORT", cfg.Export), "Write the demo chain to this dump file")
		verify  = fs.String("verify", envOr("VERIFY", cfg.Verify), "Load and validate this dump file instead of running the demo")
		profile = fs.String("profile", envOr("PROFILE", cfg.Profile), "Profile the run: cpu|mem")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, errors.WithStack(err)
	}

	cfg.Chain.Difficulty = *difficulty
	cfg.Chain.Hash = strings.TrimSpace(*hash)
	cfg.Chain.Workers = *workers
	cfg.Chain.MaxIterations = *maxIterations
	cfg.Chain.MineTimeout = *mineTimeout
	cfg.Log.Level = strings.TrimSpace(*logLevel)
	cfg.Log.Format = strings.TrimSpace(*logFormat)
	cfg.Serve = strings.TrimSpace(*serve)
	cfg.Export = strings.TrimSpace(*export)
	cfg.Verify = strings.TrimSpace(*verify)
	cfg.Profile = strings.TrimSpace(*profile)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Blockchain converts the chain settings into what blockchain.New takes
func (c Config) Blockchain() (blockchain.Config, error) {
	algorithm, err := digest.ParseAlgorithm(c.Chain.Hash)
	if err != nil {
		return blockchain.Config{}, err
	}
	return blockchain.Config{
		Difficulty:    c.Chain.Difficulty,
		Algorithm:     algorithm,
		Workers:       c.Chain.Workers,
		MaxIterations: c.Chain.MaxIterations,
		MineTimeout:   c.Chain.MineTimeout,
	}, nil
}

func validate(cfg Config) error {
	if cfg.Chain.Difficulty < 0 || cfg.Chain.Difficulty > digest.HexLen {
		return errors.Newf("difficulty out of range: %d", cfg.Chain.Difficulty)
	}
	if _, err := digest.ParseAlgorithm(cfg.Chain.Hash); err != nil {
		return err
	}
	if cfg.Chain.Workers < 1 || cfg.Chain.Workers > 1024 {
		return errors.Newf("workers out of range: %d", cfg.Chain.Workers)
	}
	if cfg.Chain.MineTimeout < 0 {
		return errors.Newf("mine-timeout must not be negative: %s", cfg.Chain.MineTimeout)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("invalid log.level: %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return errors.Newf("invalid log.format: %q", cfg.Log.Format)
	}

	switch strings.ToLower(cfg.Profile) {
	case "", "cpu", "mem":
	default:
		return errors.Newf("invalid profile: %q", cfg.Profile)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	return v
}

func envOrInt(key string, def int) int {
	n, err := strconv.Atoi(envOr(key, ""))
	if err != nil {
		return def
	}
	return n
}

func envOrUint(key string, def uint64) uint64 {
	n, err := strconv.ParseUint(envOr(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(envOr(key, ""))
	if err != nil {
		return def
	}
	return d
}
