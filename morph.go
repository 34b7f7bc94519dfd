// package morph ties a bytecode program to the source it was built from.
package morph

import (
	"errors"
	"fmt"

	"lukechampine.com/blake3"

	"morphasm.org/morph/internal/cadata"
)

// CID is a Content ID
type CID = cadata.ID

// ManifestSize is the size of a marshaled Manifest.
const ManifestSize = 2 * cadata.IDSize

var ErrBadManifest = errors.New("morph: bad manifest")

// Hash calculates the blake3-256 hash of x.
func Hash(x []byte) CID {
	return blake3.Sum256(x)
}

// Manifest records the hashes of a program's source and its bytecode.
type Manifest struct {
	Source   CID
	Bytecode CID
}

func NewManifest(src, bin []byte) Manifest {
	return Manifest{Source: Hash(src), Bytecode: Hash(bin)}
}

// MarshalBinary returns the source hash followed by the bytecode hash.
func (m Manifest) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, ManifestSize)
	out = append(out, m.Source[:]...)
	out = append(out, m.Bytecode[:]...)
	return out, nil
}

func (m *Manifest) UnmarshalBinary(data []byte) error {
	if len(data) != ManifestSize {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrBadManifest, len(data), ManifestSize)
	}
	m.Source = cadata.IDFromBytes(data[:cadata.IDSize])
	m.Bytecode = cadata.IDFromBytes(data[cadata.IDSize:])
	return nil
}

// Verify returns an error if src or bin do not match the manifest.
func (m Manifest) Verify(src, bin []byte) error {
	if err := cadata.Check(Hash, m.Source, src); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := cadata.Check(Hash, m.Bytecode, bin); err != nil {
		return fmt.Errorf("bytecode: %w", err)
	}
	return nil
}

func (m Manifest) String() string {
	return fmt.Sprintf("source=%v bytecode=%v", m.Source, m.Bytecode)
}
