// Package index builds and queries the title→offset index of a multistream
// corpus. The raw index dump lists one document per line as
// "offset:id:title"; every document packed into the same compressed block
// shares that block's offset.
package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Record is one row of the index.
type Record struct {
	Offset     uint64 `json:"offset"`
	DocumentID uint64 `json:"id"`
	Title      string `json:"title"`
}

// InsertFunc stores one record inside an in-progress build.
type InsertFunc func(Record) error

// Table is the storage capability the index needs: one atomic bulk load,
// exact-title point lookups and an ordered view of offsets.
//
// Lookup returns the offset of the first record loaded with that title.
// Absence is reported through found, never through err.
type Table interface {
	Load(ctx context.Context, fill func(insert InsertFunc) error) error
	Lookup(ctx context.Context, title string) (offset uint64, found bool, err error)
	NextOffset(ctx context.Context, offset uint64) (next uint64, found bool, err error)
	Drop(ctx context.Context) error
	Close() error
}

// ParseLine splits a raw index line. Lines that do not have exactly three
// colon-separated fields return ok == false and no error; the dump format
// reserves extra fields in some distributions. A malformed number in an
// otherwise well-shaped line is an error.
func ParseLine(line string) (rec Record, ok bool, err error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return Record{}, false, nil
	}
	offset, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("parsing offset %q: %w", parts[0], err)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("parsing document id %q: %w", parts[1], err)
	}
	return Record{Offset: offset, DocumentID: id, Title: parts[2]}, true, nil
}
