// Package sequence implements the growable array storage that backs
// list-like and tuple-like containers.
//
// A storage is either object-backed or specialised to a primitive element
// type so that homogeneous sequences avoid boxing. When a typed storage is
// asked to hold a value it cannot represent, it reports a
// GeneralizationError and the caller widens the storage (see Generalize).
// The package-level helpers SetItem, Insert and Append perform that
// recovery themselves.
package sequence

import (
	"errors"
	"fmt"
)

// ElementType identifies the backing representation of a Storage.
type ElementType uint8

const (
	EmptyElements ElementType = iota
	ByteElements
	BoolElements
	IntElements
	LongElements
	DoubleElements
	ObjectElements
)

var elementTypeNames = [...]string{
	EmptyElements:  "empty",
	ByteElements:   "byte",
	BoolElements:   "bool",
	IntElements:    "int",
	LongElements:   "long",
	DoubleElements: "double",
	ObjectElements: "object",
}

func (t ElementType) String() string {
	if int(t) < len(elementTypeNames) {
		return elementTypeNames[t]
	}
	return fmt.Sprintf("ElementType(%d)", uint8(t))
}

// minCapacity is the smallest backing array allocated on growth.
const minCapacity = 8

// ---------------------------------------------------------------------------
// Storage interface
// ---------------------------------------------------------------------------

// Storage is the backing store of a sequence. Methods with the Normalized
// suffix and the InBound slice expect indices that are already normalised
// and bounds-checked; use GetItem, SetItem, Insert and GetSlice for the
// checked versions.
type Storage interface {
	// Len is the logical length.
	Len() int
	// Cap is the allocated capacity; Len() <= Cap() always holds.
	Cap() int
	ElementType() ElementType

	GetItemNormalized(idx int) any
	// SetItemNormalized returns a *GeneralizationError if v cannot be
	// represented by this storage.
	SetItemNormalized(idx int, v any) error
	// InsertItem shifts elements at or after idx right by one. idx must be
	// in [0, Len()]. Returns a *GeneralizationError if v does not fit.
	InsertItem(idx int, v any) error
	// DeleteItem removes the element at idx, shifting the tail left.
	DeleteItem(idx int)

	// GetSliceInBound copies length elements starting at start and
	// stepping by step into a new storage of the same kind.
	GetSliceInBound(start, stop, step, length int) Storage

	Copy() Storage
	CreateEmpty(capacity int) Storage
	EnsureCapacity(capacity int)

	// Boxed returns a fresh slice holding every element as a Go value.
	Boxed() []any
	Reverse()
	IndexOf(v any) int
	Equal(other Storage) bool
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrIndexOutOfRange is matched by every *IndexError.
var ErrIndexOutOfRange = errors.New("index out of range")

// ErrGeneralizationRequired is matched by every *GeneralizationError.
var ErrGeneralizationRequired = errors.New("storage generalization required")

// ErrZeroStep is returned when a slice step of zero is requested.
var ErrZeroStep = errors.New("slice step cannot be zero")

// IndexError reports an index that is out of range after normalisation.
type IndexError struct {
	Index  int // index as supplied by the caller
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range for length %d", e.Index, e.Length)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// GeneralizationError is reported by a typed storage that cannot hold Value.
type GeneralizationError struct {
	Kind  ElementType
	Value any
}

func (e *GeneralizationError) Error() string {
	return fmt.Sprintf("%s storage cannot hold %T", e.Kind, e.Value)
}

func (e *GeneralizationError) Is(target error) bool {
	return target == ErrGeneralizationRequired
}

// grow returns the capacity to allocate so that at least need elements fit.
func grow(current, need int) int {
	newCap := current * 2
	if newCap < minCapacity {
		newCap = minCapacity
	}
	if newCap < need {
		newCap = need
	}
	return newCap
}
