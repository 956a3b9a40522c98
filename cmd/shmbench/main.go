// Package main provides shmbench, a workload driver for shmhash regions.
//
// It creates a region, runs a randomized set/get/del mix against it, and
// writes a JSON report. Useful for sizing regions: run with the expected
// key space and value sizes and read the error counters to see where a
// configuration starts refusing work.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/shmhash/pkg/shmhash"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config holds all benchmark configuration. Precedence, highest wins:
// flags > config file > defaults.
type Config struct {
	RegionPath    string `json:"region_path"`
	MemorySize    uint64 `json:"memory_size"`
	MaxBuckets    uint64 `json:"max_buckets"`
	MaxFreeBlocks uint64 `json:"max_free_blocks"`

	Ops       int    `json:"ops"`
	KeySpace  int    `json:"key_space"`
	ValueSize int    `json:"value_size"`
	Seed      int64  `json:"seed"`
	Out       string `json:"out"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RegionPath: filepath.Join(os.TempDir(), "shmbench.shm"),
		MemorySize: 1 << 20,
		Ops:        100000,
		KeySpace:   1024,
		ValueSize:  64,
		Seed:       1,
		Out:        "shmbench-report.json",
	}
}

// Report is the JSON document shmbench writes when a run completes.
type Report struct {
	Config      Config         `json:"config"`
	DurationSec float64        `json:"duration_sec"`
	NsPerOp     float64        `json:"ns_per_op"`
	OpCounts    map[string]int `json:"op_counts"`
	ErrCounts   map[string]int `json:"err_counts"`
	FinalStat   shmhash.Stat   `json:"final_stat"`
	StartedAt   time.Time      `json:"started_at"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "shmbench: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("shmbench", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to a jsonc config file")
	regionPath := fs.String("path", "", "region file path")
	memorySize := fs.Uint64("memory-size", 0, "region size in bytes")
	maxBuckets := fs.Uint64("max-buckets", 0, "bucket table capacity (0 = derive from memory size)")
	maxFreeBlocks := fs.Uint64("max-free-blocks", 0, "freelist capacity (0 = same as buckets)")
	ops := fs.Int("ops", 0, "number of operations to run")
	keySpace := fs.Int("key-space", 0, "number of distinct keys in the workload")
	valueSize := fs.Int("value-size", 0, "value payload size in bytes")
	seed := fs.Int64("seed", 0, "workload RNG seed")
	out := fs.String("out", "", "report output path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := DefaultConfig()

	if *configPath != "" {
		fileCfg, err := loadConfigFile(*configPath)
		if err != nil {
			return err
		}

		cfg = mergeConfig(cfg, fileCfg)
	}

	// Flags only override when explicitly set, so config-file values
	// survive unflagged runs.
	if fs.Changed("path") {
		cfg.RegionPath = *regionPath
	}
	if fs.Changed("memory-size") {
		cfg.MemorySize = *memorySize
	}
	if fs.Changed("max-buckets") {
		cfg.MaxBuckets = *maxBuckets
	}
	if fs.Changed("max-free-blocks") {
		cfg.MaxFreeBlocks = *maxFreeBlocks
	}
	if fs.Changed("ops") {
		cfg.Ops = *ops
	}
	if fs.Changed("key-space") {
		cfg.KeySpace = *keySpace
	}
	if fs.Changed("value-size") {
		cfg.ValueSize = *valueSize
	}
	if fs.Changed("seed") {
		cfg.Seed = *seed
	}
	if fs.Changed("out") {
		cfg.Out = *out
	}

	return bench(cfg)
}

// loadConfigFile reads a jsonc config file, standardizing it to plain JSON
// first so comments and trailing commas are allowed.
func loadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config %q: %w", path, err)
	}

	return cfg, nil
}

// mergeConfig overlays non-zero fields of over onto base.
func mergeConfig(base, over Config) Config {
	if over.RegionPath != "" {
		base.RegionPath = over.RegionPath
	}
	if over.MemorySize != 0 {
		base.MemorySize = over.MemorySize
	}
	if over.MaxBuckets != 0 {
		base.MaxBuckets = over.MaxBuckets
	}
	if over.MaxFreeBlocks != 0 {
		base.MaxFreeBlocks = over.MaxFreeBlocks
	}
	if over.Ops != 0 {
		base.Ops = over.Ops
	}
	if over.KeySpace != 0 {
		base.KeySpace = over.KeySpace
	}
	if over.ValueSize != 0 {
		base.ValueSize = over.ValueSize
	}
	if over.Seed != 0 {
		base.Seed = over.Seed
	}
	if over.Out != "" {
		base.Out = over.Out
	}

	return base
}

func bench(cfg Config) error {
	_ = os.Remove(cfg.RegionPath)

	m, err := shmhash.Init(shmhash.Options{
		Path:          cfg.RegionPath,
		MemorySize:    cfg.MemorySize,
		MaxBuckets:    cfg.MaxBuckets,
		MaxFreeBlocks: cfg.MaxFreeBlocks,
	})
	if err != nil {
		return fmt.Errorf("initializing region: %w", err)
	}
	defer m.Destroy()

	log.Printf("region %s: %d ops over %d keys, %d-byte values",
		cfg.RegionPath, cfg.Ops, cfg.KeySpace, cfg.ValueSize)

	rng := rand.New(rand.NewSource(cfg.Seed))
	value := make([]byte, cfg.ValueSize)
	rng.Read(value)

	opCounts := map[string]int{}
	errCounts := map[string]int{}

	started := time.Now()

	for i := 0; i < cfg.Ops; i++ {
		key := []byte(fmt.Sprintf("bench-key-%d", rng.Intn(cfg.KeySpace)))

		var opErr error

		switch r := rng.Intn(10); {
		case r < 6:
			opCounts["set"]++
			opErr = m.Insert(key, value)
		case r < 9:
			opCounts["get"]++
			_, opErr = m.Search(key)
		default:
			opCounts["del"]++
			opErr = m.Delete(key)
		}

		if opErr != nil {
			errCounts[shmhash.CodeOf(opErr).String()]++
		}
	}

	elapsed := time.Since(started)

	st, err := m.Stat()
	if err != nil {
		return fmt.Errorf("reading final stat: %w", err)
	}

	report := Report{
		Config:      cfg,
		DurationSec: elapsed.Seconds(),
		NsPerOp:     float64(elapsed.Nanoseconds()) / float64(cfg.Ops),
		OpCounts:    opCounts,
		ErrCounts:   errCounts,
		FinalStat:   st,
		StartedAt:   started,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := atomic.WriteFile(cfg.Out, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("writing report %q: %w", cfg.Out, err)
	}

	log.Printf("done in %s (%.0f ns/op), %d live keys, report at %s",
		elapsed.Round(time.Millisecond), report.NsPerOp, st.UsedBuckets, cfg.Out)

	return nil
}
