// Package repack analyzes solid 7-Zip archives and re-encodes the ones whose
// solid blocks are too large to be worth keeping as they are.
//
// An [Archive] is built from the technical listing printed by the archiver
// ("7zr l -slt"). It exposes derived analytics: unpacked and packed totals,
// the compression ratio, per-block packed sizes and the set of file
// extensions. A [Policy] turns those analytics plus [Params] into a
// [Decision], and a [Recompressor] performs the extract, re-encode, verify and
// replace cycle. A [Collection] drives the whole process over directories.
//
// # Quick Start
//
// Analyze and optimize a directory of archives:
//
//	tool := sevenzip.New(sevenzip.WithTimeout(time.Hour))
//	c := repack.NewCollection(tool, repack.DefaultParams(),
//	    repack.CollectionWithLogger(logger),
//	)
//	report, err := c.Run(ctx, []string{"/data/archives"})
//
// # Verification
//
// A re-encoded archive replaces its source only when both describe the same
// files, judged by [Archive.FilesInfo]: the file count, min/max/average
// unpacked size and the extension set must match exactly. This is a coarse
// check; [RecompressWithStrictVerify] additionally compares
// [Archive.ManifestDigest], a digest over every path and unpacked size.
//
// # Failures
//
// Failures are scoped to one archive. The original file is never touched
// unless the new archive passed verification, and scratch directories and
// partial outputs are removed on every exit path. [Collection.Run] logs the
// failure and continues with the next archive.
package repack
