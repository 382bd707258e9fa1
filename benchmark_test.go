package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

type BenchmarkPayload struct {
	ID      uint32
	Val1    uint64
	Val2    uint64
	Val3    uint64
	IsAlive bool
	Padding [3]byte
}

type BenchmarkCodec = Fixed[BenchmarkPayload]

func BenchmarkFixedWriteTo(b *testing.B) {
	c := &BenchmarkCodec{Payload: BenchmarkPayload{ID: 1, Val1: 100}}
	buf := NewBufferSize(c.Size())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		_, _ = c.WriteTo(buf)
	}
}

func BenchmarkFixedReadFrom(b *testing.B) {
	c := &BenchmarkCodec{Payload: BenchmarkPayload{ID: 1, Val1: 100}}
	var data bytes.Buffer
	_, _ = c.WriteTo(&data)
	src := bytes.NewReader(data.Bytes())
	var c2 BenchmarkCodec
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src.Seek(0, io.SeekStart)
		_, _ = c2.ReadFrom(src)
	}
}

func BenchmarkRecordMarshalTo(b *testing.B) {
	r := sampleRecord()
	p := make([]byte, r.Size())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.MarshalTo(p)
	}
}

// Baseline comparison using only binary.Write directly, to see overhead of the wrapper
func BenchmarkStandardBinaryWrite(b *testing.B) {
	payload := BenchmarkPayload{ID: 1, Val1: 100}
	buf := NewBufferSize(binary.Size(payload))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		_ = binary.Write(buf, Order, &payload)
	}
}

func BenchmarkBufferPrimitives(b *testing.B) {
	buf := NewBufferSize(64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		buf.WriteInt32(int32(i))
		buf.WriteInt64(int64(i))
		buf.WriteString("service-template")
		_ = buf.ReadInt32()
		_ = buf.ReadInt64()
		_ = buf.ReadString()
	}
}
