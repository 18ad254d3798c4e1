package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/pyframe/pkg/sequence"
)

// Indexable is a sequence a ReverseIterator can walk.
type Indexable interface {
	Len() int
	GetItem(i int) (Value, error)
}

// StorageSequence adapts sequence storage to Indexable.
type StorageSequence struct {
	Storage sequence.Storage
}

func (s StorageSequence) Len() int { return s.Storage.Len() }

func (s StorageSequence) GetItem(i int) (Value, error) {
	return sequence.GetItem(s.Storage, i)
}

func (s StorageSequence) String() string { return fmt.Sprint(s.Storage.Boxed()) }

// ---------------------------------------------------------------------------
// ReverseIterator
// ---------------------------------------------------------------------------

// ReverseIterator yields the items of a sequence from last to first, as
// reversed() does. The sequence is indexed on every step so it may change
// underneath; an index error simply ends iteration.
type ReverseIterator struct {
	seq       Indexable
	runes     []rune
	isString  bool
	index     int
	exhausted bool
}

// ReduceState is the pickling form of a reverse iterator: the iterated
// object and, unless exhausted, the position.
type ReduceState struct {
	Object   Value
	Index    int
	HasState bool
}

// NewReverseIterator starts at the last item of seq.
func NewReverseIterator(seq Indexable) *ReverseIterator {
	return &ReverseIterator{seq: seq, index: seq.Len() - 1}
}

// NewStringReverseIterator walks the code points of s backwards.
func NewStringReverseIterator(s string) *ReverseIterator {
	r := []rune(s)
	return &ReverseIterator{runes: r, isString: true, index: len(r) - 1}
}

// Next returns the next item. Exhaustion is reported as ErrStopIteration
// and is permanent.
func (it *ReverseIterator) Next() (Value, error) {
	if it.exhausted {
		return nil, ErrStopIteration
	}
	if it.index >= 0 {
		i := it.index
		if it.isString {
			if i < len(it.runes) {
				it.index--
				return string(it.runes[i]), nil
			}
		} else {
			it.index--
			v, err := it.seq.GetItem(i)
			if err == nil {
				return v, nil
			}
			if !errors.Is(err, sequence.ErrIndexOutOfRange) {
				return nil, err
			}
		}
	}
	it.exhausted = true
	return nil, ErrStopIteration
}

// LengthHint estimates the remaining items.
func (it *ReverseIterator) LengthHint() int {
	if it.exhausted {
		return 0
	}
	if !it.isString && it.seq.Len() < it.index {
		return 0
	}
	return it.index + 1
}

func (it *ReverseIterator) IsExhausted() bool { return it.exhausted }

// Reduce returns the state needed to rebuild the iterator. An exhausted
// iterator reduces to an empty sequence of the same kind and no position.
func (it *ReverseIterator) Reduce() ReduceState {
	if it.isString {
		if it.exhausted {
			return ReduceState{Object: ""}
		}
		return ReduceState{Object: string(it.runes), Index: it.index, HasState: true}
	}
	if it.exhausted {
		return ReduceState{Object: StorageSequence{Storage: sequence.Empty}}
	}
	return ReduceState{Object: it.seq, Index: it.index, HasState: true}
}

// SetState moves the cursor; values below -1 are clamped to -1.
func (it *ReverseIterator) SetState(index int) {
	if index < -1 {
		index = -1
	}
	it.index = index
}
