package repack

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// entry is one file record of a hand-written listing.
type entry struct {
	path   string
	size   int64
	packed string
	block  string
	attrs  string
}

// listingText renders a technical listing for archive path "test.7z".
func listingText(method string, solid bool, blocks int, files ...entry) string {
	var b strings.Builder
	b.WriteString("Listing archive: test.7z\r\n\r\n--\r\nPath = test.7z\r\nType = 7z\r\n")
	sign := "-"
	if solid {
		sign = "+"
	}
	fmt.Fprintf(&b, "Method = %s\r\nSolid = %s\r\nBlocks = %d\r\n\r\n----------\r\n", method, sign, blocks)
	for _, f := range files {
		fmt.Fprintf(&b, "Path = %s\r\nSize = %d\r\nPacked Size = %s\r\nAttributes = %s\r\nBlock = %s\r\n\r\n",
			f.path, f.size, f.packed, f.attrs, f.block)
	}
	return b.String()
}

func mustParse(t *testing.T, text string) *Archive {
	t.Helper()
	a, err := ParseListing("test.7z", text)
	require.NoError(t, err)
	return a
}
