// Package listing parses the technical listing printed by the archiver's
// "l -slt" command.
//
// Parsing happens in two phases: Tokenize turns the raw text into key/value
// pairs, then Parse folds those pairs into archive and file records.
package listing

import "strings"

const (
	separator      = " = "
	emptySeparator = " ="
)

// Pair is one "Key = Value" line of a listing.
type Pair struct {
	// Line is the 1-based line number in the listing.
	Line  int
	Key   string
	Value string
}

// Tokenize splits a listing into key/value pairs.
// Both CRLF and LF line endings are accepted. Lines that are not key/value
// pairs (banners, separators, blank lines) are skipped.
func Tokenize(text string) []Pair {
	lines := strings.Split(text, "\n")
	pairs := make([]Pair, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		key, value, ok := strings.Cut(line, separator)
		if !ok {
			key, ok = strings.CutSuffix(line, emptySeparator)
			if !ok {
				continue
			}
			value = ""
		}
		if key == "" {
			continue
		}
		pairs = append(pairs, Pair{Line: i + 1, Key: key, Value: value})
	}
	return pairs
}
