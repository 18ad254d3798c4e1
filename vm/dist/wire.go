package dist

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// signature is the identity-free part of a snapshot.
type signature struct {
	ExcType string  `cbor:"1,keyasint"`
	Frames  []Frame `cbor:"2,keyasint"`
}

// Digest hashes the exception type and frame positions, ignoring the ID,
// timestamp, message and locals, so repeated occurrences of the same
// failure share a digest.
func Digest(s *Snapshot) ([32]byte, error) {
	sig := signature{ExcType: s.ExcType, Frames: make([]Frame, len(s.Frames))}
	for i, f := range s.Frames {
		sig.Frames[i] = Frame{Filename: f.Filename, Name: f.Name, Line: f.Line, Lasti: f.Lasti}
	}
	data, err := cborEncMode.Marshal(&sig)
	if err != nil {
		return [32]byte{}, fmt.Errorf("dist: digest: %w", err)
	}
	return sha256.Sum256(data), nil
}
