package mapper

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/oy3o/wire"
)

type funcSerializer[T any] struct {
	write func(*wire.Buffer, T)
	read  func(*wire.Buffer) T
}

// Func adapts a pair of buffer operations into a Serializer for T. Values of
// a named type with the same underlying kind are converted on write.
func Func[T any](write func(*wire.Buffer, T), read func(*wire.Buffer) T) Serializer {
	return funcSerializer[T]{write: write, read: read}
}

func (s funcSerializer[T]) Write(buf *wire.Buffer, v any, t *Type, _ *Mapper) error {
	x, ok := v.(T)
	if !ok {
		rv, err := convertValue(v, reflect.TypeFor[T]())
		if err != nil {
			return fmt.Errorf("%w (writing %s)", err, t.Key())
		}
		x = rv.Interface().(T)
	}
	s.write(buf, x)
	return buf.Err()
}

func (s funcSerializer[T]) Read(buf *wire.Buffer, _ *Type, _ *Mapper) (any, error) {
	v := s.read(buf)
	if err := buf.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

func writeInt(b *wire.Buffer, v int)   { b.WriteInt64(int64(v)) }
func readInt(b *wire.Buffer) int       { return int(b.ReadInt64()) }
func writeUint(b *wire.Buffer, v uint) { b.WriteUint64(uint64(v)) }
func readUint(b *wire.Buffer) uint     { return uint(b.ReadUint64()) }

func writeUUID(b *wire.Buffer, v uuid.UUID) { _, _ = b.Write(v[:]) }

func readUUID(b *wire.Buffer) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b.ReadRaw(len(id)))
	return id
}

func writeDuration(b *wire.Buffer, v time.Duration) { b.WriteInt64(int64(v)) }
func readDuration(b *wire.Buffer) time.Duration     { return time.Duration(b.ReadInt64()) }

// Times travel as nanoseconds since the Unix epoch and decode in UTC.
func writeTime(b *wire.Buffer, v time.Time) { b.WriteInt64(v.UnixNano()) }
func readTime(b *wire.Buffer) time.Time     { return time.Unix(0, b.ReadInt64()).UTC() }

func registerDefaults(m *Mapper) {
	// Int32 before Char: both are bound to int32 and the first claims it.
	m.RegisterBinding(Bool, Func((*wire.Buffer).WriteBool, (*wire.Buffer).ReadBool), false)
	m.RegisterBinding(Int8, Func((*wire.Buffer).WriteInt8, (*wire.Buffer).ReadInt8), false)
	m.RegisterBinding(Int16, Func((*wire.Buffer).WriteInt16, (*wire.Buffer).ReadInt16), false)
	m.RegisterBinding(Int32, Func((*wire.Buffer).WriteInt32, (*wire.Buffer).ReadInt32), false)
	m.RegisterBinding(Int64, Func((*wire.Buffer).WriteInt64, (*wire.Buffer).ReadInt64), false)
	m.RegisterBinding(Int, Func(writeInt, readInt), false)
	m.RegisterBinding(Uint8, Func((*wire.Buffer).WriteUint8, (*wire.Buffer).ReadUint8), false)
	m.RegisterBinding(Uint16, Func((*wire.Buffer).WriteUint16, (*wire.Buffer).ReadUint16), false)
	m.RegisterBinding(Uint32, Func((*wire.Buffer).WriteUint32, (*wire.Buffer).ReadUint32), false)
	m.RegisterBinding(Uint64, Func((*wire.Buffer).WriteUint64, (*wire.Buffer).ReadUint64), false)
	m.RegisterBinding(Uint, Func(writeUint, readUint), false)
	m.RegisterBinding(Float32, Func((*wire.Buffer).WriteFloat32, (*wire.Buffer).ReadFloat32), false)
	m.RegisterBinding(Float64, Func((*wire.Buffer).WriteFloat64, (*wire.Buffer).ReadFloat64), false)
	m.RegisterBinding(Char, Func((*wire.Buffer).WriteChar, (*wire.Buffer).ReadChar), false)
	m.RegisterBinding(String, Func((*wire.Buffer).WriteString, (*wire.Buffer).ReadString), false)
	m.RegisterBinding(Bytes, Func((*wire.Buffer).WriteBlob, (*wire.Buffer).ReadBlob), false)
	m.RegisterBinding(UUID, Func(writeUUID, readUUID), false)
	m.RegisterBinding(Duration, Func(writeDuration, readDuration), false)
	m.RegisterBinding(Time, Func(writeTime, readTime), false)
	m.RegisterBinding(Document, newDocumentSerializer(), false)

	m.RegisterBinding(Optional, optionalSerializer{}, false)
	m.RegisterBinding(Collection, CollectionSerializer(NewList), false)
	m.RegisterBinding(List, CollectionSerializer(NewList), false)
	m.RegisterBinding(Set, CollectionSerializer(NewSet), false)
	m.RegisterBinding(ConcurrentSet, CollectionSerializer(NewConcurrentSet), false)
	m.RegisterBinding(Map, MapSerializer(NewMap), false)
	m.RegisterBinding(ConcurrentMap, MapSerializer(NewConcurrentMap), false)
	m.RegisterBinding(Any, recordSerializer{}, false)

	m.goTypes.Store(maybeType, Optional.Of(Any))
	m.goTypes.Store(concurrentMapType, ConcurrentMap.Of(Any, Any))
}
