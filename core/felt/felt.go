package felt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/fxamacker/cbor/v2"
)

type Felt fp.Element

const (
	Limbs = fp.Limbs // number of 64 bits words needed to represent a Element
	Bits  = fp.Bits  // number of bits needed to represent a Element
	Bytes = fp.Bytes // number of bytes needed to represent a Element
)

var ErrNotUint64 = errors.New("felt does not fit into uint64")

// Zero felt constant
var Zero = Felt{}

// One felt constant
var One = FromUint64(1)

var bigIntPool = sync.Pool{
	New: func() any {
		return new(big.Int)
	},
}

func FromUint64(v uint64) Felt {
	var f Felt
	f.SetUint64(v)
	return f
}

func NewFromUint64(v uint64) *Felt {
	f := FromUint64(v)
	return &f
}

func FromBytes(b []byte) Felt {
	var f Felt
	f.SetBytes(b)
	return f
}

// NewFromHex parses a hex string with or without the 0x prefix.
func NewFromHex(s string) (*Felt, error) {
	s = strings.TrimPrefix(s, "0x")
	return new(Felt).SetString("0x" + s)
}

// Impl returns the underlying field element type
func (z *Felt) Impl() *fp.Element {
	return (*fp.Element)(z)
}

// UnmarshalJSON accepts numbers and strings as input.
// See Element.SetString for valid prefixes (0x, 0b, ...).
// If there is an error, we try to explicitly unmarshal from hex before
// returning an error.
func (z *Felt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) > fp.Bits*3 {
		return errors.New("value too large (max = Element.Bits * 3)")
	}

	// we accept numbers and strings, remove leading and trailing quotes if any
	if len(s) > 0 && s[0] == '"' {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == '"' {
		s = s[:len(s)-1]
	}

	vv := bigIntPool.Get().(*big.Int)
	defer bigIntPool.Put(vv)

	if _, ok := vv.SetString(s, 0); !ok {
		if _, ok := vv.SetString(s, 16); !ok {
			return errors.New("can't parse into a big.Int: " + s)
		}
	}

	z.Impl().SetBigInt(vv)
	return nil
}

// MarshalJSON encodes the felt as a quoted 0x-prefixed hex string
func (z Felt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + z.String() + `"`), nil
}

func (z Felt) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *Felt) UnmarshalText(text []byte) error {
	_, err := NewFromHexInto(z, string(text))
	return err
}

// NewFromHexInto is NewFromHex writing into an existing felt.
func NewFromHexInto(z *Felt, s string) (*Felt, error) {
	f, err := NewFromHex(s)
	if err != nil {
		return nil, err
	}
	*z = *f
	return z, nil
}

// MarshalCBOR encodes the felt as a 32 byte big-endian byte string
func (z Felt) MarshalCBOR() ([]byte, error) {
	b := z.Bytes()
	return cbor.Marshal(b[:])
}

func (z *Felt) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) > Bytes {
		return fmt.Errorf("felt too long: %d bytes", len(b))
	}
	z.SetBytes(b)
	return nil
}

// SetBytes interprets e as the bytes of a big-endian unsigned integer, reduced modulo p
func (z *Felt) SetBytes(e []byte) *Felt {
	z.Impl().SetBytes(e)
	return z
}

// SetString accepts 0x-prefixed hex and decimal strings
func (z *Felt) SetString(number string) (*Felt, error) {
	if _, err := z.Impl().SetString(number); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *Felt) SetUint64(v uint64) *Felt {
	z.Impl().SetUint64(v)
	return z
}

func (z *Felt) SetBigInt(v *big.Int) *Felt {
	z.Impl().SetBigInt(v)
	return z
}

func (z *Felt) SetRandom() (*Felt, error) {
	if _, err := z.Impl().SetRandom(); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *Felt) Set(x *Felt) *Felt {
	*z = *x
	return z
}

// String returns the 0x-prefixed hex representation
func (z Felt) String() string {
	e := fp.Element(z)
	return "0x" + e.Text(16)
}

// ShortString is String truncated to at most 8+8 characters.
func (z Felt) ShortString() string {
	str := z.String()
	if len(str) <= 18 {
		return str
	}
	return str[:10] + "..." + str[len(str)-8:]
}

func (z Felt) Text(base int) string {
	e := fp.Element(z)
	return e.Text(base)
}

func (z Felt) Equal(x *Felt) bool {
	return z == *x
}

func (z Felt) Marshal() []byte {
	e := fp.Element(z)
	return e.Marshal()
}

func (z Felt) Bytes() [32]byte {
	e := fp.Element(z)
	return e.Bytes()
}

func (z Felt) BigInt(res *big.Int) *big.Int {
	e := fp.Element(z)
	return e.BigInt(res)
}

// Uint64 returns the felt as uint64 if its value fits
func (z Felt) Uint64() (uint64, error) {
	b := z.Bytes()
	for _, v := range b[:Bytes-8] {
		if v != 0 {
			return 0, ErrNotUint64
		}
	}
	return binary.BigEndian.Uint64(b[Bytes-8:]), nil
}

func (z Felt) IsOne() bool {
	e := fp.Element(z)
	return e.IsOne()
}

func (z Felt) IsZero() bool {
	return z == Zero
}

func (z *Felt) Add(x, y *Felt) *Felt {
	z.Impl().Add(x.Impl(), y.Impl())
	return z
}

func (z *Felt) Sub(x, y *Felt) *Felt {
	z.Impl().Sub(x.Impl(), y.Impl())
	return z
}

func (z *Felt) Mul(x, y *Felt) *Felt {
	z.Impl().Mul(x.Impl(), y.Impl())
	return z
}

// Cmp compares the regular (non-Montgomery) forms of z and x
func (z Felt) Cmp(x *Felt) int {
	e := fp.Element(z)
	return e.Cmp(x.Impl())
}
