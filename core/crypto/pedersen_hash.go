package crypto

import (
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
)

// Pedersen is the two to one [Pedersen hash].
//
// [Pedersen hash]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#pedersen_hash
func Pedersen(a, b *felt.Felt) *felt.Felt {
	hash := pedersenhash.Pedersen(a.Impl(), b.Impl())
	return (*felt.Felt)(&hash)
}

// PedersenArray hashes elems as an array: a chain over the elements closed
// by their count.
func PedersenArray(elems ...*felt.Felt) *felt.Felt {
	var digest PedersenDigest
	return digest.Update(elems...).Finish()
}

// PedersenDigest builds an array hash incrementally. The zero value is
// ready to use.
type PedersenDigest struct {
	acc fp.Element
	n   uint64
}

func (d *PedersenDigest) Update(elems ...*felt.Felt) *PedersenDigest {
	for _, elem := range elems {
		d.acc = pedersenhash.Pedersen(&d.acc, elem.Impl())
	}
	d.n += uint64(len(elems))
	return d
}

func (d *PedersenDigest) Finish() *felt.Felt {
	var n fp.Element
	n.SetUint64(d.n)
	hash := felt.Felt(pedersenhash.Pedersen(&d.acc, &n))
	return &hash
}
