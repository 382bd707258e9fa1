package chunk

import (
	"io"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/oy3o/wire"
)

// Frame flags.
const (
	FlagOpen uint8 = 1 << iota
	FlagFinal
	FlagCompressed
)

// Decode limits. Anything larger is rejected with wire.ErrLengthOverflow
// before memory is allocated for it.
var (
	MaxChannelLen = 256
	MaxExtraLen   = 64 * 1024
	MaxPayloadLen = 16 << 20
)

type header struct {
	Session  [16]byte
	Index    uint32
	Flags    uint8
	Checksum uint64
}

var headerSize = (&wire.Fixed[header]{}).Size()

// Frame is one unit of a chunked transfer.
//
// Layout: fixed header (session, index, flags, checksum), channel name, then
// on the open frame only the extra data and the declared length, then the
// payload. Checksum is the xxh3 hash of Payload as it travels, after any
// compression.
type Frame struct {
	Session  uuid.UUID
	Index    uint32
	Flags    uint8
	Checksum uint64
	Channel  string
	Extra    []byte
	Length   int64
	Payload  []byte
}

var _ wire.Codec = (*Frame)(nil)

func (f *Frame) IsOpen() bool       { return f.Flags&FlagOpen != 0 }
func (f *Frame) IsFinal() bool      { return f.Flags&FlagFinal != 0 }
func (f *Frame) IsCompressed() bool { return f.Flags&FlagCompressed != 0 }

// Seal computes the checksum over the current payload.
func (f *Frame) Seal() { f.Checksum = xxh3.Hash(f.Payload) }

// Verify reports whether the payload matches the checksum.
func (f *Frame) Verify() bool { return xxh3.Hash(f.Payload) == f.Checksum }

func (f *Frame) Size() int {
	n := headerSize
	n += wire.UvarintSize(uint64(len(f.Channel))) + len(f.Channel)
	if f.IsOpen() {
		n += wire.UvarintSize(uint64(len(f.Extra))) + len(f.Extra)
		n += 8
	}
	n += wire.UvarintSize(uint64(len(f.Payload))) + len(f.Payload)
	return n
}

func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	ww, err := wire.NewWriter(w)
	if err != nil {
		return 0, err
	}
	ww.WriteFrom(&wire.Fixed[header]{Payload: header{
		Session:  f.Session,
		Index:    f.Index,
		Flags:    f.Flags,
		Checksum: f.Checksum,
	}})
	ww.WriteUTF8(f.Channel)
	if f.IsOpen() {
		ww.WriteBlob(f.Extra)
		ww.WriteInt64(f.Length)
	}
	ww.WriteBlob(f.Payload)
	return ww.Result()
}

// ReadFrom decodes one frame. Consecutive frames can be read from a single
// *wire.Reader; other readers may be buffered past the end of the frame.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	rr, err := wire.NewReader(r)
	if err != nil {
		return 0, err
	}
	var h wire.Fixed[header]
	rr.ReadTo(&h)
	if rr.Err() != nil {
		return rr.Result()
	}
	*f = Frame{
		Session:  h.Payload.Session,
		Index:    h.Payload.Index,
		Flags:    h.Payload.Flags,
		Checksum: h.Payload.Checksum,
		Length:   -1,
	}
	rr.ReadUTF8(&f.Channel, MaxChannelLen)
	if f.IsOpen() {
		f.Extra = nilIfEmpty(rr.ReadBlob(MaxExtraLen))
		rr.ReadInt64(&f.Length)
	}
	f.Payload = nilIfEmpty(rr.ReadBlob(MaxPayloadLen))
	n, err := rr.Result()
	if err == io.EOF {
		// the header was complete, so the frame is cut short
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (f *Frame) MarshalBinary() ([]byte, error) { return wire.MarshalBinaryGeneric(f) }

func (f *Frame) MarshalTo(p []byte) (int, error) { return wire.MarshalToGeneric(f, p) }

func (f *Frame) UnmarshalBinary(data []byte) error { return wire.UnmarshalBinaryGeneric(f, data) }

func nilIfEmpty(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	return p
}
