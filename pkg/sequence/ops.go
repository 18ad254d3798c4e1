package sequence

import "errors"

// ---------------------------------------------------------------------------
// Checked access
// ---------------------------------------------------------------------------

// normalize wraps negative indices from the end and bounds-checks the result.
func normalize(s Storage, idx int) (int, error) {
	n := s.Len()
	i := idx
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, &IndexError{Index: idx, Length: n}
	}
	return i, nil
}

// GetItem returns the element at idx; negative indices count from the end.
func GetItem(s Storage, idx int) (any, error) {
	i, err := normalize(s, idx)
	if err != nil {
		return nil, err
	}
	return s.GetItemNormalized(i), nil
}

// SetItem stores v at idx, generalizing the storage if it cannot hold v.
// The returned storage replaces s in the owning container.
func SetItem(s Storage, idx int, v any) (Storage, error) {
	i, err := normalize(s, idx)
	if err != nil {
		return s, err
	}
	if err := s.SetItemNormalized(i, v); err != nil {
		if !errors.Is(err, ErrGeneralizationRequired) {
			return s, err
		}
		s = Generalize(s, v)
		if err := s.SetItemNormalized(i, v); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Insert inserts v before idx. idx is clamped into [0, Len()] after
// wrapping negative values, so Insert never fails.
func Insert(s Storage, idx int, v any) Storage {
	n := s.Len()
	if idx < 0 {
		idx += n
		if idx < 0 {
			idx = 0
		}
	} else if idx > n {
		idx = n
	}
	if err := s.InsertItem(idx, v); err != nil {
		s = Generalize(s, v)
		if err := s.InsertItem(idx, v); err != nil {
			// Object storage accepts every value.
			panic("sequence: generalized storage rejected value: " + err.Error())
		}
	}
	return s
}

// Append adds v at the end.
func Append(s Storage, v any) Storage {
	return Insert(s, s.Len(), v)
}

// Delete removes the element at idx.
func Delete(s Storage, idx int) error {
	i, err := normalize(s, idx)
	if err != nil {
		return err
	}
	s.DeleteItem(i)
	return nil
}

// ---------------------------------------------------------------------------
// Slicing
// ---------------------------------------------------------------------------

// SliceLength is the number of elements selected by start:stop:step where
// start and stop are already adjusted to the sequence.
func SliceLength(start, stop, step int) int {
	if step < 0 {
		if stop < start {
			return (start-stop-1)/(-step) + 1
		}
		return 0
	}
	if start < stop {
		return (stop-start-1)/step + 1
	}
	return 0
}

// AdjustIndices clamps start and stop against a sequence of the given
// length the way Python slice objects do, and returns the slice length.
func AdjustIndices(length, start, stop, step int) (int, int, int, error) {
	if step == 0 {
		return 0, 0, 0, ErrZeroStep
	}
	start = adjustBound(length, start, step)
	stop = adjustBound(length, stop, step)
	return start, stop, SliceLength(start, stop, step), nil
}

func adjustBound(length, i, step int) int {
	if i < 0 {
		i += length
		if i < 0 {
			if step < 0 {
				return -1
			}
			return 0
		}
		return i
	}
	if i >= length {
		if step < 0 {
			return length - 1
		}
		return length
	}
	return i
}

// GetSlice copies resultLen elements starting at start and stepping by
// step into a new storage. The arguments must come from AdjustIndices.
func GetSlice(s Storage, start, stop, step, resultLen int) Storage {
	if resultLen <= 0 {
		return s.CreateEmpty(0)
	}
	return s.GetSliceInBound(start, stop, step, resultLen)
}

// ---------------------------------------------------------------------------
// Generalization
// ---------------------------------------------------------------------------

// Generalize returns a storage holding the same elements as s that can also
// hold v. It returns s itself when s already accepts v.
func Generalize(s Storage, v any) Storage {
	var target Storage
	switch s.ElementType() {
	case EmptyElements:
		return CreateStorageFor(v, minCapacity)
	case ObjectElements:
		return s
	case ByteElements:
		switch {
		case fitsInt32(v):
			target = NewIntStorage(nil)
		case isInteger(v):
			target = NewLongStorage(nil)
		}
	case IntElements:
		if isInteger(v) && !fitsInt32(v) {
			target = NewLongStorage(nil)
		}
	}
	if target == nil {
		target = NewObjectStorage(nil)
	}
	return convert(s, target)
}

// convert copies every element of s into an empty storage shaped like
// target, keeping the capacity of s.
func convert(s Storage, target Storage) Storage {
	out := target.CreateEmpty(s.Cap())
	for i, v := range s.Boxed() {
		if err := out.InsertItem(i, v); err != nil {
			panic("sequence: widened storage rejected element: " + err.Error())
		}
	}
	return out
}
