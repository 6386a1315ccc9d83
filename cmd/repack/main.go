// Command repack re-encodes 7z archives whose solid blocks are too large.
//
// Usage:
//
//	repack [flags] path...
//
// Every path is scanned recursively for .7z and .7zip archives. Each
// archive is reported on stdout; qualifying archives are extracted into a
// scratch directory and re-encoded with bounded solid blocks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meigma/repack"
	"github.com/meigma/repack/internal/listcache"
	"github.com/meigma/repack/sevenzip"
)

type config struct {
	params        repack.Params
	binary        string
	cacheDir      string
	cacheMaxBytes repack.Size
	strictVerify  bool
	blocks        bool
	verbose       bool
	paths         []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "repack: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "params", cfg.params.String(), "archiver", cfg.binary, "paths", len(cfg.paths))

	tool := sevenzip.New(
		sevenzip.WithBinary(cfg.binary),
		sevenzip.WithTimeout(cfg.params.Timeout),
		sevenzip.WithLogger(logger),
	)

	opts := []repack.CollectionOption{
		repack.CollectionWithLogger(logger),
		repack.CollectionWithOutput(stdout),
		repack.CollectionWithBlockTree(cfg.blocks),
		repack.CollectionWithRecompressOptions(
			repack.RecompressWithStrictVerify(cfg.strictVerify),
			repack.RecompressWithProgress(func(ev repack.ProgressEvent) {
				logger.Info("archive stage", "archive", ev.Path, "stage", ev.Stage.String(), "level", ev.Level)
			}),
		),
	}
	if cfg.cacheDir != "" {
		cache, err := listcache.New(cfg.cacheDir, listcache.WithMaxBytes(cfg.cacheMaxBytes.Int64()))
		if err != nil {
			logger.Error("open listing cache", "dir", cfg.cacheDir, "error", err)
			return 1
		}
		defer cache.Close()
		logger.Info("listing cache",
			"dir", cfg.cacheDir,
			"size_bytes", cache.SizeBytes(),
			"max_bytes", cache.MaxBytes())
		opts = append(opts, repack.CollectionWithListingCache(cache))
	}

	report, err := repack.NewCollection(tool, cfg.params, opts...).Run(ctx, cfg.paths)
	if err != nil {
		logger.Error("batch interrupted", "error", err, "archives", report.Archives)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	cfg := config{params: repack.DefaultParams()}
	fs := flag.NewFlagSet("repack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: repack [flags] path...")
		fs.PrintDefaults()
	}

	fs.Var(&cfg.params.MaxSolidBlockSize, "max-solid-block-size", "largest acceptable shared solid block (e.g. 3M)")
	fs.Var(&cfg.params.MaxNonpackedSpaceLoss, "max-nonpacked-space-loss", "bytes that storing uncompressed may cost")
	fs.Float64Var(&cfg.params.MinUnpackedRatio, "min-unpacked-ratio", cfg.params.MinUnpackedRatio, "packed/unpacked ratio from which archives are stored uncompressed")
	fs.IntVar(&cfg.params.CompressionLevel, "compression-level", cfg.params.CompressionLevel, "compression level 1-9 for compressible archives")
	fs.StringVar(&cfg.params.TempDir, "temp-dir", cfg.params.TempDir, "directory for scratch data and dry-run results")
	fs.DurationVar(&cfg.params.Timeout, "timeout", cfg.params.Timeout, "per archiver call timeout (0 disables)")
	fs.BoolVar(&cfg.params.DryRun, "dry-run", false, "re-encode into the temp dir without replacing archives")
	fs.BoolVar(&cfg.params.KeepDryRunResult, "keep-dry-run-result", false, "keep dry-run archives in the temp dir")
	fs.StringVar(&cfg.binary, "7z", sevenzip.DefaultBinary, "archiver executable")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "listing cache directory (disabled when empty)")
	fs.Var(&cfg.cacheMaxBytes, "cache-max-size", "listing cache size limit (0 = unlimited)")
	fs.BoolVar(&cfg.strictVerify, "strict-verify", false, "also compare every path and size before replacing")
	fs.BoolVar(&cfg.blocks, "blocks", false, "print the block layout of every archive")
	fs.BoolVar(&cfg.verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.paths = fs.Args()
	if len(cfg.paths) == 0 {
		fs.Usage()
		return cfg, errors.New("no paths given")
	}
	if err := cfg.params.Validate(); err != nil {
		return cfg, err
	}
	if cfg.cacheMaxBytes < 0 {
		return cfg, fmt.Errorf("cache max size %s is negative", cfg.cacheMaxBytes)
	}
	return cfg, nil
}
