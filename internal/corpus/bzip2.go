package corpus

import "io"

const (
	bzip2EndMagic = 0x177245385090
	magicMask     = 1<<48 - 1
)

// streamEndReader passes through the bytes of a single bzip2 stream and
// reports io.EOF after the byte holding the end-of-stream marker's CRC and
// padding. Both bzip2 readers available continue into a following
// concatenated stream, so the stream has to be cut before it reaches them.
//
// The marker is bit-aligned and not escaped in the compressed data, so a
// match inside a block is possible in principle; the decoder then sees a
// truncated block and fails with a checksum or EOF error rather than
// returning wrong text.
type streamEndReader struct {
	r       io.Reader
	reg     uint64
	bits    uint64
	crcLeft int // -1 while searching for the marker
	done    bool
}

func newStreamEndReader(r io.Reader) *streamEndReader {
	return &streamEndReader{r: r, crcLeft: -1}
}

func (s *streamEndReader) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	n, err := s.r.Read(p)
	for i := 0; i < n; i++ {
		if s.push(p[i]) {
			s.done = true
			return i + 1, nil
		}
	}
	return n, err
}

// push feeds one byte MSB first and reports whether the stream ends with it.
func (s *streamEndReader) push(b byte) bool {
	for bit := 7; bit >= 0; bit-- {
		s.reg = s.reg<<1 | uint64(b>>uint(bit)&1)
		s.bits++
		switch {
		case s.crcLeft > 0:
			s.crcLeft--
			if s.crcLeft == 0 {
				// The rest of this byte is padding.
				return true
			}
		case s.crcLeft < 0:
			// Skip the 32-bit "BZh?" header before matching.
			if s.bits >= 32+48 && s.reg&magicMask == bzip2EndMagic {
				s.crcLeft = 32
			}
		}
	}
	return false
}
