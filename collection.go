package repack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/repack/internal/scan"
)

// ListingCache stores raw archive listings by key.
type ListingCache interface {
	Get(key digest.Digest) ([]byte, bool)
	Put(key digest.Digest, listing []byte) error
	Delete(key digest.Digest) error
}

// Report summarizes a collection run.
type Report struct {
	// Archives is the number of candidate archives seen.
	Archives int

	// Recompressed is the number of archives that were re-encoded.
	Recompressed int

	// Unchanged is the number of archives the policy left alone.
	Unchanged int

	// Delta is the summed packed-size change of all recompressed archives.
	Delta Size

	// Failures lists the archives that could not be processed.
	Failures []Failure
}

// Failure records an archive-scoped error.
type Failure struct {
	Path string
	Err  error
}

// Collection applies the policy and the recompressor to every archive
// found under a set of paths.
type Collection struct {
	tool           Tool
	params         Params
	policy         *Policy
	recompressor   *Recompressor
	recompressOpts []RecompressOption
	out            io.Writer
	extensions     map[string]struct{}
	cache          ListingCache
	blockTree      bool
	logger         *slog.Logger
}

// NewCollection creates a Collection using tool and params.
func NewCollection(tool Tool, params Params, opts ...CollectionOption) *Collection {
	c := &Collection{
		tool:   tool,
		params: params,
		policy: NewPolicy(params),
		out:    io.Discard,
	}
	CollectionWithExtensions(DefaultExtensions...)(c)
	for _, opt := range opts {
		opt(c)
	}
	recompressOpts := append([]RecompressOption{RecompressWithLogger(c.logger)}, c.recompressOpts...)
	c.recompressor = NewRecompressor(tool, params, recompressOpts...)
	return c
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Collection) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Run processes every archive found under paths, one at a time, in
// traversal order. Directories are scanned recursively.
//
// Errors scoped to one archive are written to the report output, logged and
// recorded in the Report; processing continues with the next archive. Run
// only returns an error when ctx is done.
func (c *Collection) Run(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{}
	for entry, err := range scan.Files(paths) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		if err != nil {
			fmt.Fprintln(c.out, entry.Path)
			c.fail(report, entry.Path, err)
			continue
		}
		if !c.accepts(entry.Path) {
			continue
		}
		report.Archives++
		if err := c.process(ctx, entry.Path, report); err != nil {
			c.fail(report, entry.Path, err)
		}
	}
	fmt.Fprintf(c.out, "Total: d=%s\n", report.Delta)
	c.log().Info("collection done",
		"archives", report.Archives,
		"recompressed", report.Recompressed,
		"unchanged", report.Unchanged,
		"failed", len(report.Failures),
		"delta", report.Delta.String())
	return report, ctx.Err()
}

// process analyzes one archive and recompresses it when the policy says so.
func (c *Collection) process(ctx context.Context, path string, report *Report) error {
	fmt.Fprintln(c.out, path)
	c.recompressor.report(StageListing, path, 0)
	arc, key, err := c.open(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, " %s %s\n", arc.Info(), arc.FilesInfo())
	if c.blockTree {
		fmt.Fprint(c.out, arc.BlockTree())
	}

	decision := c.policy.Decide(arc)
	c.log().Debug("policy decision",
		"archive", path,
		"recompress", decision.Recompress,
		"level", decision.Level,
		"reason", decision.Reason)
	if !decision.Recompress {
		fmt.Fprintln(c.out, " unchanged")
		report.Unchanged++
		return nil
	}

	res, err := c.recompressor.Recompress(ctx, arc, decision.Level)
	if err != nil {
		return err
	}
	if res.Replaced {
		c.forget(key)
	}
	fmt.Fprintf(c.out, " %s\n  d=%s\n", res.Archive.Info(), res.Delta)
	report.Recompressed++
	report.Delta = report.Delta.Add(res.Delta)
	return nil
}

// open lists the archive, going through the listing cache when configured.
// The returned key is empty when no cache is configured.
func (c *Collection) open(ctx context.Context, path string) (*Archive, digest.Digest, error) {
	timeout := c.params.Timeout
	if c.cache == nil {
		_, arc, err := listArchive(ctx, c.tool, timeout, path)
		return arc, "", err
	}

	key, err := ListingKey(path)
	if err != nil {
		return nil, "", err
	}
	if cached, ok := c.cache.Get(key); ok {
		arc, parseErr := ParseListing(path, string(cached))
		if parseErr == nil {
			c.log().Debug("listing cache hit", "archive", path, "key", key.String())
			return arc, key, nil
		}
		c.log().Warn("dropping unreadable cached listing", "archive", path, "error", parseErr)
		c.forget(key)
	}

	text, arc, err := listArchive(ctx, c.tool, timeout, path)
	if err != nil {
		return nil, "", err
	}
	if putErr := c.cache.Put(key, []byte(text)); putErr != nil {
		c.log().Warn("failed to cache listing", "archive", path, "error", putErr)
	}
	return arc, key, nil
}

// forget removes a cached listing that no longer describes its archive.
func (c *Collection) forget(key digest.Digest) {
	if c.cache == nil || key == "" {
		return
	}
	if err := c.cache.Delete(key); err != nil {
		c.log().Warn("failed to drop cached listing", "key", key.String(), "error", err)
	}
}

func (c *Collection) accepts(path string) bool {
	_, ok := c.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (c *Collection) fail(report *Report, path string, err error) {
	report.Failures = append(report.Failures, Failure{Path: path, Err: err})
	fmt.Fprintf(c.out, " error: %v\n", err)
	c.log().Error("archive failed", "archive", path, "error", err)
}

// ListingKey derives the listing cache key of the archive at path from its
// absolute path, size and modification time, so a rewritten archive gets a
// new key.
func ListingKey(path string) (digest.Digest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return digest.FromString(fmt.Sprintf("%s\x00%d\x00%d", abs, info.Size(), info.ModTime().UnixNano())), nil
}
