package repack

import "log/slog"

// RecompressOption configures a Recompressor.
type RecompressOption func(*Recompressor)

// RecompressWithLogger sets the logger for recompression.
// If not set, logging is disabled.
func RecompressWithLogger(logger *slog.Logger) RecompressOption {
	return func(r *Recompressor) {
		r.logger = logger
	}
}

// RecompressWithProgress sets a callback that receives a ProgressEvent
// whenever an archive enters a new stage.
func RecompressWithProgress(fn ProgressFunc) RecompressOption {
	return func(r *Recompressor) {
		r.progress = fn
	}
}

// RecompressWithStrictVerify also compares Archive.ManifestDigest before
// accepting a re-encoded archive, so that every path and unpacked size must
// survive, not only the aggregate statistics.
func RecompressWithStrictVerify(enabled bool) RecompressOption {
	return func(r *Recompressor) {
		r.strict = enabled
	}
}
