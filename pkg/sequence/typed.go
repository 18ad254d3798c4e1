package sequence

import "math"

// ---------------------------------------------------------------------------
// Element codecs
// ---------------------------------------------------------------------------

// codec converts between Go values and the element type T of a storage.
type codec[T any] struct {
	kind  ElementType
	unbox func(v any) (T, bool)
	box   func(x T) any
	equal func(a, b T) bool
}

func eq[T comparable](a, b T) bool { return a == b }

// asInt64 accepts any Go integer type whose value fits in an int64.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

func fitsInt32(v any) bool {
	n, ok := asInt64(v)
	return ok && n >= math.MinInt32 && n <= math.MaxInt32
}

func fitsByte(v any) bool {
	n, ok := asInt64(v)
	return ok && n >= 0 && n <= math.MaxUint8
}

var intCodec = &codec[int32]{
	kind: IntElements,
	unbox: func(v any) (int32, bool) {
		if !fitsInt32(v) {
			return 0, false
		}
		n, _ := asInt64(v)
		return int32(n), true
	},
	box:   func(x int32) any { return int(x) },
	equal: eq[int32],
}

var longCodec = &codec[int64]{
	kind:  LongElements,
	unbox: asInt64,
	box:   func(x int64) any { return int(x) },
	equal: eq[int64],
}

var doubleCodec = &codec[float64]{
	kind: DoubleElements,
	unbox: func(v any) (float64, bool) {
		f, ok := v.(float64)
		return f, ok
	},
	box:   func(x float64) any { return x },
	equal: eq[float64],
}

var boolCodec = &codec[bool]{
	kind: BoolElements,
	unbox: func(v any) (bool, bool) {
		b, ok := v.(bool)
		return b, ok
	},
	box:   func(x bool) any { return x },
	equal: eq[bool],
}

var byteCodec = &codec[uint8]{
	kind: ByteElements,
	unbox: func(v any) (uint8, bool) {
		if !fitsByte(v) {
			return 0, false
		}
		n, _ := asInt64(v)
		return uint8(n), true
	},
	box:   func(x uint8) any { return int(x) },
	equal: eq[uint8],
}

var objectCodec = &codec[any]{
	kind:  ObjectElements,
	unbox: func(v any) (any, bool) { return v, true },
	box:   func(x any) any { return x },
	equal: objectEqual,
}

// objectEqual compares boxed values without panicking on uncomparable
// dynamic types; those compare equal only when identical interfaces.
func objectEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// ---------------------------------------------------------------------------
// TypedStorage
// ---------------------------------------------------------------------------

// TypedStorage is a storage over a Go slice of T. The slice length is the
// capacity; length elements are live.
type TypedStorage[T any] struct {
	values []T
	length int
	codec  *codec[T]
}

type (
	IntStorage    = TypedStorage[int32]
	LongStorage   = TypedStorage[int64]
	DoubleStorage = TypedStorage[float64]
	BoolStorage   = TypedStorage[bool]
	ByteStorage   = TypedStorage[uint8]
	ObjectStorage = TypedStorage[any]
)

func newTyped[T any](c *codec[T], values []T) *TypedStorage[T] {
	return &TypedStorage[T]{values: values, length: len(values), codec: c}
}

// NewIntStorage takes ownership of values.
func NewIntStorage(values []int32) *IntStorage { return newTyped(intCodec, values) }

// NewLongStorage takes ownership of values.
func NewLongStorage(values []int64) *LongStorage { return newTyped(longCodec, values) }

// NewDoubleStorage takes ownership of values.
func NewDoubleStorage(values []float64) *DoubleStorage { return newTyped(doubleCodec, values) }

// NewBoolStorage takes ownership of values.
func NewBoolStorage(values []bool) *BoolStorage { return newTyped(boolCodec, values) }

// NewByteStorage takes ownership of values.
func NewByteStorage(values []uint8) *ByteStorage { return newTyped(byteCodec, values) }

// NewObjectStorage takes ownership of values.
func NewObjectStorage(values []any) *ObjectStorage { return newTyped(objectCodec, values) }

func (s *TypedStorage[T]) Len() int                 { return s.length }
func (s *TypedStorage[T]) Cap() int                 { return len(s.values) }
func (s *TypedStorage[T]) ElementType() ElementType { return s.codec.kind }

// Get returns the unboxed element at a normalised index.
func (s *TypedStorage[T]) Get(idx int) T { return s.values[idx] }

// Values returns a copy of the live elements.
func (s *TypedStorage[T]) Values() []T {
	out := make([]T, s.length)
	copy(out, s.values[:s.length])
	return out
}

func (s *TypedStorage[T]) GetItemNormalized(idx int) any {
	return s.codec.box(s.values[idx])
}

func (s *TypedStorage[T]) SetItemNormalized(idx int, v any) error {
	x, ok := s.codec.unbox(v)
	if !ok {
		return &GeneralizationError{Kind: s.codec.kind, Value: v}
	}
	s.values[idx] = x
	return nil
}

func (s *TypedStorage[T]) InsertItem(idx int, v any) error {
	x, ok := s.codec.unbox(v)
	if !ok {
		return &GeneralizationError{Kind: s.codec.kind, Value: v}
	}
	s.EnsureCapacity(s.length + 1)
	copy(s.values[idx+1:s.length+1], s.values[idx:s.length])
	s.values[idx] = x
	s.length++
	return nil
}

func (s *TypedStorage[T]) DeleteItem(idx int) {
	copy(s.values[idx:s.length-1], s.values[idx+1:s.length])
	var zero T
	s.values[s.length-1] = zero
	s.length--
}

func (s *TypedStorage[T]) GetSliceInBound(start, stop, step, length int) Storage {
	out := make([]T, length)
	if step == 1 {
		copy(out, s.values[start:start+length])
		return newTyped(s.codec, out)
	}
	for i, j := start, 0; j < length; i, j = i+step, j+1 {
		out[j] = s.values[i]
	}
	return newTyped(s.codec, out)
}

func (s *TypedStorage[T]) Copy() Storage {
	return newTyped(s.codec, s.Values())
}

func (s *TypedStorage[T]) CreateEmpty(capacity int) Storage {
	return &TypedStorage[T]{values: make([]T, capacity), codec: s.codec}
}

func (s *TypedStorage[T]) EnsureCapacity(capacity int) {
	if capacity <= len(s.values) {
		return
	}
	grown := make([]T, grow(len(s.values), capacity))
	copy(grown, s.values[:s.length])
	s.values = grown
}

func (s *TypedStorage[T]) Boxed() []any {
	out := make([]any, s.length)
	for i := 0; i < s.length; i++ {
		out[i] = s.codec.box(s.values[i])
	}
	return out
}

func (s *TypedStorage[T]) Reverse() {
	for i, j := 0, s.length-1; i < j; i, j = i+1, j-1 {
		s.values[i], s.values[j] = s.values[j], s.values[i]
	}
}

func (s *TypedStorage[T]) IndexOf(v any) int {
	x, ok := s.codec.unbox(v)
	if !ok {
		return -1
	}
	for i := 0; i < s.length; i++ {
		if s.codec.equal(s.values[i], x) {
			return i
		}
	}
	return -1
}

func (s *TypedStorage[T]) Equal(other Storage) bool {
	o, ok := other.(*TypedStorage[T])
	if !ok || o.codec.kind != s.codec.kind || o.length != s.length {
		return false
	}
	for i := 0; i < s.length; i++ {
		if !s.codec.equal(s.values[i], o.values[i]) {
			return false
		}
	}
	return true
}
