package parse

import (
	"bufio"
	"errors"
	"io"

	"github.com/banshee-data/navcore/internal/monitoring"
)

// DecoderStats counts decoder outcomes since construction.
type DecoderStats struct {
	Decoded     uint64
	BadLength   uint64
	BadChecksum uint64
}

// Decoder resynchronises on the frame marker and yields validated frames
// from a byte stream. It is not safe for concurrent use; each stream has
// exactly one reader.
type Decoder struct {
	r     *bufio.Reader
	stats DecoderStats
}

// NewDecoder reads frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 16*FrameSize)}
}

// Next returns the next valid frame. Malformed frames are dropped silently:
// only the rejected frame's first byte is consumed, so the marker scan
// resumes inside the rejected bytes and picks up the next real frame.
// Errors from the underlying reader are returned unchanged.
func (d *Decoder) Next() (Frame, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != HeaderByte {
			continue
		}

		rest, err := d.r.Peek(FrameSize - 1)
		if err != nil {
			if errors.Is(err, io.EOF) && len(rest) > 0 {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		if rest[0] != VerLenByte {
			continue
		}

		var buf [FrameSize]byte
		buf[0] = b
		copy(buf[1:], rest)

		frame, err := Unmarshal(buf[:])
		if err != nil {
			d.reject(err)
			continue
		}

		if _, err := d.r.Discard(FrameSize - 1); err != nil {
			return Frame{}, err
		}
		d.stats.Decoded++
		monitoring.RecordFrame(monitoring.FrameDecoded)
		return frame, nil
	}
}

func (d *Decoder) reject(err error) {
	switch {
	case errors.Is(err, ErrFrameChecksum):
		d.stats.BadChecksum++
		monitoring.RecordFrame(monitoring.FrameBadChecksum)
	default:
		d.stats.BadLength++
		monitoring.RecordFrame(monitoring.FrameBadLength)
	}
}

// Stats returns the decoder's counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}
