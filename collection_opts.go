package repack

import (
	"io"
	"log/slog"
	"strings"
)

// DefaultExtensions are the archive file extensions a Collection picks up.
var DefaultExtensions = []string{".7z", ".7zip"}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// CollectionWithLogger sets the logger for the collection and the
// recompressor it creates. If not set, logging is disabled.
func CollectionWithLogger(logger *slog.Logger) CollectionOption {
	return func(c *Collection) {
		c.logger = logger
	}
}

// CollectionWithOutput sets the writer that receives the report.
// Defaults to io.Discard.
func CollectionWithOutput(w io.Writer) CollectionOption {
	return func(c *Collection) {
		c.out = w
	}
}

// CollectionWithExtensions replaces the recognized archive extensions.
// Extensions include the leading dot and are matched case-insensitively.
func CollectionWithExtensions(exts ...string) CollectionOption {
	return func(c *Collection) {
		c.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			c.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// CollectionWithListingCache consults cache before listing an archive and
// stores fresh listings in it. Listings of re-encoded archives bypass the cache.
func CollectionWithListingCache(cache ListingCache) CollectionOption {
	return func(c *Collection) {
		c.cache = cache
	}
}

// CollectionWithBlockTree prints Archive.BlockTree for every archive.
func CollectionWithBlockTree(enabled bool) CollectionOption {
	return func(c *Collection) {
		c.blockTree = enabled
	}
}

// CollectionWithRecompressOptions passes options to the Recompressor.
func CollectionWithRecompressOptions(opts ...RecompressOption) CollectionOption {
	return func(c *Collection) {
		c.recompressOpts = append(c.recompressOpts, opts...)
	}
}
