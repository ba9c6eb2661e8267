package crypto

import (
	"encoding/binary"
	"errors"
	"math/bits"

	"github.com/NethermindEth/starknet-replay/core/felt"
	"golang.org/x/crypto/sha3"
)

// KeccakRateWords is the keccak256 block size in 64 bit words.
const KeccakRateWords = 17

var ErrKeccakInputLength = errors.New("keccak input is not a whole number of blocks")

// StarknetKeccak implements [Starknet keccak]
//
// [Starknet keccak]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#starknet_keccak
func StarknetKeccak(b []byte) (*felt.Felt, error) {
	h := sha3.NewLegacyKeccak256()
	if _, err := h.Write(b); err != nil {
		return nil, err
	}
	d := h.Sum(nil)
	// Remove the first 6 bits from the first byte
	d[0] &= 3
	return new(felt.Felt).SetBytes(d), nil
}

// KeccakBlocks absorbs words, already padded by the caller into blocks of
// KeccakRateWords, and squeezes the first 256 bits of the state as a u256
// split into its low and high 128 bit words. No padding is added.
func KeccakBlocks(words []uint64) (low, high felt.Felt, err error) {
	if len(words)%KeccakRateWords != 0 {
		return low, high, ErrKeccakInputLength
	}

	var state [25]uint64
	for block := words; len(block) > 0; block = block[KeccakRateWords:] {
		for i, word := range block[:KeccakRateWords] {
			state[i] ^= word
		}
		keccakF1600(&state)
	}
	return u128(state[0], state[1]), u128(state[2], state[3]), nil
}

func u128(lo, hi uint64) felt.Felt {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], hi)
	binary.BigEndian.PutUint64(buf[8:], lo)
	var f felt.Felt
	f.SetBytes(buf[:])
	return f
}

var keccakRoundConstants = [24]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808a, 0x8000000080008000,
	0x000000000000808b, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008a, 0x0000000000000088, 0x0000000080008009, 0x000000008000000a,
	0x000000008000808b, 0x800000000000008b, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800a, 0x800000008000000a,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// keccakRotations holds the rho offset of lane x+5y.
var keccakRotations = [25]int{
	0, 1, 62, 28, 27,
	36, 44, 6, 55, 20,
	3, 10, 43, 25, 39,
	41, 45, 15, 21, 8,
	18, 2, 61, 56, 14,
}

// keccakF1600 is the keccak permutation over a state of lanes indexed x+5y.
func keccakF1600(a *[25]uint64) {
	var c [5]uint64
	var b [25]uint64
	for round := range keccakRoundConstants {
		for x := range 5 {
			c[x] = a[x] ^ a[x+5] ^ a[x+10] ^ a[x+15] ^ a[x+20]
		}
		for x := range 5 {
			d := c[(x+4)%5] ^ bits.RotateLeft64(c[(x+1)%5], 1)
			for y := 0; y < 25; y += 5 {
				a[y+x] ^= d
			}
		}

		for x := range 5 {
			for y := range 5 {
				b[y+5*((2*x+3*y)%5)] = bits.RotateLeft64(a[x+5*y], keccakRotations[x+5*y])
			}
		}

		for y := 0; y < 25; y += 5 {
			for x := range 5 {
				a[y+x] = b[y+x] ^ (^b[y+(x+1)%5] & b[y+(x+2)%5])
			}
		}
		a[0] ^= keccakRoundConstants[round]
	}
}
