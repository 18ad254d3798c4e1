package sequence

// ---------------------------------------------------------------------------
// EmptyStorage
// ---------------------------------------------------------------------------

// EmptyStorage is the storage of a sequence that has never held an element.
// Any insertion requires generalization to a concrete variant.
type EmptyStorage struct{}

// Empty is the shared empty storage.
var Empty Storage = EmptyStorage{}

func (EmptyStorage) Len() int                 { return 0 }
func (EmptyStorage) Cap() int                 { return 0 }
func (EmptyStorage) ElementType() ElementType { return EmptyElements }

func (EmptyStorage) GetItemNormalized(idx int) any {
	panic("sequence: GetItemNormalized on empty storage")
}

func (EmptyStorage) SetItemNormalized(idx int, v any) error {
	return &GeneralizationError{Kind: EmptyElements, Value: v}
}

func (EmptyStorage) InsertItem(idx int, v any) error {
	return &GeneralizationError{Kind: EmptyElements, Value: v}
}

func (EmptyStorage) DeleteItem(idx int) {
	panic("sequence: DeleteItem on empty storage")
}

func (EmptyStorage) GetSliceInBound(start, stop, step, length int) Storage { return Empty }
func (EmptyStorage) Copy() Storage                                         { return Empty }
func (EmptyStorage) CreateEmpty(capacity int) Storage                      { return Empty }
func (EmptyStorage) EnsureCapacity(capacity int)                           {}
func (EmptyStorage) Boxed() []any                                          { return []any{} }
func (EmptyStorage) Reverse()                                              {}
func (EmptyStorage) IndexOf(v any) int                                     { return -1 }

func (EmptyStorage) Equal(other Storage) bool {
	return other.Len() == 0
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// CreateStorage picks the narrowest storage able to hold every value. The
// values slice is not retained.
func CreateStorage(values []any) Storage {
	return CreateStorageCapacity(values, len(values))
}

// CreateStorageCapacity is CreateStorage with a minimum backing capacity.
func CreateStorageCapacity(values []any, capacity int) Storage {
	if len(values) == 0 {
		if capacity <= 0 {
			return Empty
		}
		return NewObjectStorage(make([]any, 0)).CreateEmpty(capacity)
	}
	if capacity < len(values) {
		capacity = len(values)
	}
	switch {
	case all(values, isInt32):
		return specialize(intCodec, values, capacity)
	case all(values, isFloat):
		return specialize(doubleCodec, values, capacity)
	case all(values, isInteger):
		return specialize(longCodec, values, capacity)
	case all(values, isBool):
		return specialize(boolCodec, values, capacity)
	case all(values, isByte):
		return specialize(byteCodec, values, capacity)
	}
	return specialize(objectCodec, values, capacity)
}

// CreateStorageFor returns an empty storage of the variant that suits sample.
func CreateStorageFor(sample any, capacity int) Storage {
	var s Storage
	switch {
	case isByte(sample):
		s = NewByteStorage(nil)
	case fitsInt32(sample):
		s = NewIntStorage(nil)
	case isInteger(sample):
		s = NewLongStorage(nil)
	case isFloat(sample):
		s = NewDoubleStorage(nil)
	case isBool(sample):
		s = NewBoolStorage(nil)
	default:
		s = NewObjectStorage(nil)
	}
	return s.CreateEmpty(capacity)
}

func specialize[T any](c *codec[T], values []any, capacity int) *TypedStorage[T] {
	out := make([]T, capacity)
	for i, v := range values {
		out[i], _ = c.unbox(v)
	}
	return &TypedStorage[T]{values: out, length: len(values), codec: c}
}

func all(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// isInt32 excludes explicit bytes so that byte sequences keep their own
// variant.
func isInt32(v any) bool {
	return !isByte(v) && fitsInt32(v)
}

func isInteger(v any) bool {
	_, ok := asInt64(v)
	return ok
}

func isFloat(v any) bool {
	_, ok := v.(float64)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// isByte only accepts values that are explicitly bytes.
func isByte(v any) bool {
	_, ok := v.(uint8)
	return ok
}
