package source

// reader.go normalises raw CSV bytes before they reach encoding/csv.
//
// Upstream files come from several tools: some carry a UTF-8 BOM, a few are
// UTF-16 exports from spreadsheets, and the odd one has stray Latin-1 bytes
// in a place name. NewReader handles all three:
//
//   - a BOM selects UTF-8 or UTF-16 and is stripped (BOMOverride)
//   - without a BOM the input is decoded as UTF-8
//   - invalid sequences become U+FFFD instead of failing the whole file

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewReader wraps r with BOM detection and UTF-8 validation.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// countingReader tracks bytes consumed so the loader can log file sizes
// without a separate stat call.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
