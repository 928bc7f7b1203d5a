package proto

import (
	"bufio"
	"encoding/binary"
	"io"
)

// DecodeFrame validates a complete frame and returns its contents. The
// returned payload aliases data.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize+ChecksumSize {
		return nil, NewMalformedFrameError(ReasonTruncated, "frame has %d bytes, need at least %d", len(data), HeaderSize+ChecksumSize)
	}
	if data[0] != MagicByte0 || data[1] != MagicByte1 {
		return nil, NewMalformedFrameError(ReasonBadMagic, "got 0x%02x 0x%02x", data[0], data[1])
	}

	n := binary.LittleEndian.Uint32(data[8:])
	if n > MaxPayloadSize {
		return nil, NewMalformedFrameError(ReasonOversize, "declared payload of %d bytes", n)
	}
	if uint64(len(data)) != uint64(HeaderSize)+uint64(n)+ChecksumSize {
		return nil, NewMalformedFrameError(ReasonLengthMismatch, "declared payload of %d bytes in frame of %d bytes", n, len(data))
	}

	end := HeaderSize + int(n)
	want := binary.LittleEndian.Uint16(data[end:])
	if got := Checksum(data[:end]); got != want {
		return nil, NewMalformedFrameError(ReasonChecksum, "got 0x%04x, want 0x%04x", got, want)
	}

	return &Frame{
		Command:   Command(binary.LittleEndian.Uint16(data[2:])),
		SessionID: binary.LittleEndian.Uint16(data[4:]),
		ReplyID:   binary.LittleEndian.Uint16(data[6:]),
		Payload:   data[HeaderSize:end],
	}, nil
}

// ReadFrame reads exactly one frame from a stream. I/O errors are returned
// as they are; framing problems are returned as *MalformedFrameError.
// Bytes of a frame cut short by an error are lost, use a FrameReader to
// read from a connection with deadlines.
func ReadFrame(r io.Reader) (*Frame, error) {
	fr := &FrameReader{r: r}
	return fr.ReadFrame()
}

// FrameReader reads frames from a stream and survives interrupted reads.
// When a read fails part way through a frame, the bytes read so far are
// kept and the next ReadFrame continues the same frame, so the stream
// stays aligned on frame boundaries after a timeout.
type FrameReader struct {
	r       io.Reader
	pending []byte
}

// NewFrameReader buffers r. The FrameReader must then be the only reader
// of r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, HeaderSize+MaxPayloadSize+ChecksumSize)}
}

// Pending reports the number of bytes of an unfinished frame.
func (fr *FrameReader) Pending() int {
	return len(fr.pending)
}

// ReadFrame reads the next frame. A malformed header discards the pending
// bytes since the stream cannot be realigned.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	if err := fr.fill(HeaderSize); err != nil {
		return nil, err
	}
	header := fr.pending[:HeaderSize]
	if header[0] != MagicByte0 || header[1] != MagicByte1 {
		fr.pending = nil
		return nil, NewMalformedFrameError(ReasonBadMagic, "got 0x%02x 0x%02x", header[0], header[1])
	}

	n := binary.LittleEndian.Uint32(header[8:])
	if n > MaxPayloadSize {
		fr.pending = nil
		return nil, NewMalformedFrameError(ReasonOversize, "declared payload of %d bytes", n)
	}

	if err := fr.fill(HeaderSize + int(n) + ChecksumSize); err != nil {
		return nil, err
	}

	data := fr.pending
	fr.pending = nil
	return DecodeFrame(data)
}

// fill reads until pending holds n bytes.
func (fr *FrameReader) fill(n int) error {
	if cap(fr.pending) < n {
		grown := make([]byte, len(fr.pending), n)
		copy(grown, fr.pending)
		fr.pending = grown
	}

	for len(fr.pending) < n {
		m, err := fr.r.Read(fr.pending[len(fr.pending):n])
		fr.pending = fr.pending[:len(fr.pending)+m]
		if err == nil {
			continue
		}
		if len(fr.pending) >= n {
			return nil
		}
		if err == io.EOF && len(fr.pending) > 0 {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// DecodeUserPage decodes every length-prefixed user record in a page. A
// record with the wrong stride is skipped and reported; the rest of the
// page is still decoded.
func DecodeUserPage(payload []byte) ([]User, []error) {
	users := make([]User, 0)
	errs := walkPage(payload, func(rec []byte) error {
		u, err := DecodeUserRecord(rec)
		if err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	return users, errs
}

// DecodePunchPage is the attendance record counterpart of DecodeUserPage.
func DecodePunchPage(payload []byte) ([]Punch, []error) {
	punches := make([]Punch, 0)
	errs := walkPage(payload, func(rec []byte) error {
		p, err := DecodePunchRecord(rec)
		if err != nil {
			return err
		}
		punches = append(punches, p)
		return nil
	})
	return punches, errs
}

func walkPage(payload []byte, fn func(rec []byte) error) []error {
	var errs []error
	for off := 0; off < len(payload); {
		if len(payload)-off < 2 {
			errs = append(errs, NewMalformedFrameError(ReasonTruncated, "dangling byte at page offset %d", off))
			break
		}
		n := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if n > len(payload)-off {
			errs = append(errs, NewMalformedFrameError(ReasonTruncated, "record of %d bytes overruns page at offset %d", n, off))
			break
		}
		if err := fn(payload[off : off+n]); err != nil {
			errs = append(errs, err)
		}
		off += n
	}
	return errs
}
