// package cadata provides content identifiers.
package cadata

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	IDSize = 32
	// Base64Alphabet is used when encoding IDs as base64 strings.
	// It is a URL and filepath safe encoding, which maintains ordering.
	Base64Alphabet = "-0123456789" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + "_" + "abcdefghijklmnopqrstuvwxyz"
)

// ID identifies a particular piece of data
type ID [IDSize]byte

func IDFromBytes(x []byte) ID {
	id := ID{}
	copy(id[:], x)
	return id
}

var enc = base64.NewEncoding(Base64Alphabet).WithPadding(base64.NoPadding)

func (id ID) String() string {
	return enc.EncodeToString(id[:])
}

func (id ID) MarshalText() ([]byte, error) {
	buf := make([]byte, enc.EncodedLen(len(id)))
	enc.Encode(buf, id[:])
	return buf, nil
}

func (id *ID) UnmarshalText(data []byte) error {
	if enc.DecodedLen(len(data)) != IDSize {
		return fmt.Errorf("cadata: wrong length for ID HAVE: %d WANT: %d", enc.DecodedLen(len(data)), IDSize)
	}
	var x ID
	if _, err := enc.Decode(x[:], data); err != nil {
		return err
	}
	*id = x
	return nil
}

func (a ID) Equals(b ID) bool {
	return a.Compare(b) == 0
}

func (a ID) Compare(b ID) int {
	return bytes.Compare(a[:], b[:])
}

func (id ID) IsZero() bool {
	return id == (ID{})
}

type HashFunc = func(x []byte) ID

type ErrBadData struct {
	Have ID
	Want ID
}

func (e ErrBadData) Error() string {
	return fmt.Sprintf("bad data. HAVE: %v WANT: %v", e.Have, e.Want)
}

// Check returns ErrBadData if data does not hash to expected.
func Check(hf HashFunc, expected ID, data []byte) error {
	actual := hf(data)
	if subtle.ConstantTimeCompare(actual[:], expected[:]) != 1 {
		return ErrBadData{Have: actual, Want: expected}
	}
	return nil
}

// IsBadData returns true if err is or wraps ErrBadData.
func IsBadData(err error) bool {
	var target ErrBadData
	return errors.As(err, &target)
}
