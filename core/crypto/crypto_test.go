package crypto_test

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/NethermindEth/starknet-replay/core/crypto"
	"github.com/NethermindEth/starknet-replay/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexToFelt(t *testing.T, s string) *felt.Felt {
	t.Helper()
	f, err := felt.NewFromHex(s)
	require.NoError(t, err)
	return f
}

func TestPedersen(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{
			"0x03d937c035c878245caf64531a5756109c53068da139362728feb561405371cb",
			"0x0208a0a10250e382e1e4bbe2880906c2791bf6275695e02fbbc6aeff9cd8b31a",
			"0x030e480bed5fe53fa909cc0f8c4d99b8f9f2c016be4c41e13a4848797979c662",
		},
		{
			"0x58f580910a6ca59b28927c08fe6c43e2e303ca384badc365795fc645d479d45",
			"0x78734f65a067be9bdb39de18434d71e79f7b6466a4b66bbd979ab9e7515fe0b",
			"0x68cc0b76cddd1dd4ed2301ada9b7c872b23875d5ff837b3a87993e0d9996b87",
		},
	}

	hasher, err := crypto.NewHasher(16)
	require.NoError(t, err)

	for i, tt := range tests {
		t.Run(fmt.Sprintf("TestHash %d", i), func(t *testing.T) {
			a, b, want := hexToFelt(t, tt.a), hexToFelt(t, tt.b), hexToFelt(t, tt.want)

			assert.Equal(t, want, crypto.Pedersen(a, b))
			// first call misses, second hits
			assert.Equal(t, want, hasher.Pedersen(a, b))
			assert.Equal(t, want, hasher.Pedersen(a, b))
		})
	}

	hits, misses := hasher.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestPedersenArray(t *testing.T) {
	tests := [...]struct {
		input []string
		want  string
	}{
		{
			input: []string{
				// []byte("STARKNET_CONTRACT_ADDRESS")
				"0x535441524b4e45545f434f4e54524143545f41444452455353",
				"0x0",
				"0x5bebda1b28ba6daa824126577b9fbc984033e8b18360f5e1ef694cb172c7aa5",
				"0x0439218681f9108b470d2379cf589ef47e60dc5888ee49ec70071671d74ca9c6",
				"0x49ee3eba8c1600700ee1b87eb599f16716b0b1022947733551fde4050ca6804",
			},
			want: "0x43c6817e70b3fd99a4f120790b2e82c6843df62b573fdadf9e2d677b60ac5eb",
		},
		{
			input: make([]string, 0),
			// h(0, 0)
			want: "0x49ee3eba8c1600700ee1b87eb599f16716b0b1022947733551fde4050ca6804",
		},
	}
	for _, test := range tests {
		var digest, digestWhole crypto.PedersenDigest
		data := make([]*felt.Felt, len(test.input))
		for i, item := range test.input {
			elem := hexToFelt(t, item)
			digest.Update(elem)
			data[i] = elem
		}
		digestWhole.Update(data...)
		want := hexToFelt(t, test.want)
		assert.Equal(t, want, crypto.PedersenArray(data...))
		assert.Equal(t, want, digest.Finish())
		assert.Equal(t, want, digestWhole.Finish())
	}
}

func TestStarknetKeccak(t *testing.T) {
	tests := [...]struct {
		input, want string
	}{
		{"", "01d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"abc", "0203657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
		{"test", "0022ff5f21f0b81b113e63f7db6da94fedef11b2119b4088b89664fb9a3cb658"},
		{"starknet", "014909ac0d4a034239ea4f7265fac97d189ff7430fec65bce3879ab4b5a8d058"},
		{"keccak", "0335a135a69c769066bbb4d17b2fa3ec922c028d4e4bf9d0402e6f7c12b31813"},
	}
	for _, test := range tests {
		d, err := crypto.StarknetKeccak([]byte(test.input))
		require.NoError(t, err)
		assert.Equal(t, test.want, fmt.Sprintf("%x", d.Bytes()), "input %q", test.input)
	}
}

func TestKeccakBlocks(t *testing.T) {
	paddedWords := func(msg []byte) []uint64 {
		blockBytes := 8 * crypto.KeccakRateWords
		padded := make([]byte, (len(msg)/blockBytes+1)*blockBytes)
		copy(padded, msg)
		padded[len(msg)] ^= 0x01
		padded[len(padded)-1] ^= 0x80
		words := make([]uint64, len(padded)/8)
		for i := range words {
			words[i] = binary.LittleEndian.Uint64(padded[8*i:])
		}
		return words
	}
	twoBlocks := make([]byte, 8*crypto.KeccakRateWords)
	for i := range twoBlocks {
		twoBlocks[i] = byte(i)
	}

	tests := map[string]struct {
		words     []uint64
		low, high string
	}{
		// keccak256("") = c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470
		"empty message": {
			words: paddedWords(nil),
			low:   "0xc003c7dcb27d7e923c23f7860146d2c5",
			high:  "0x70a4855d04d8fa7b3b2782ca53b600e5",
		},
		"two blocks": {
			words: paddedWords(twoBlocks),
			low:   "0x660a6bc270997137e49c7fabf159e77c",
			high:  "0x7e807f7d9cd2f59cf87de1383efe11ff",
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			low, high, err := crypto.KeccakBlocks(test.words)
			require.NoError(t, err)
			assert.Equal(t, test.low, low.String())
			assert.Equal(t, test.high, high.String())
		})
	}

	_, _, err := crypto.KeccakBlocks(make([]uint64, crypto.KeccakRateWords-1))
	require.ErrorIs(t, err, crypto.ErrKeccakInputLength)
}

func TestStarkVerifier(t *testing.T) {
	privKey, err := ecdsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pub := crypto.PublicKeyOf(privKey)
	msg := felt.NewFromUint64(0xdeadbeef)

	sig, err := crypto.Sign(privKey, msg)
	require.NoError(t, err)
	require.Len(t, sig, 2)

	verifier := crypto.StarkVerifier{}
	t.Run("valid", func(t *testing.T) {
		ok, err := verifier.Verify(pub, msg, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong message", func(t *testing.T) {
		ok, err := verifier.Verify(pub, felt.NewFromUint64(1), sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := verifier.Verify(pub, msg, sig[:1])
		require.ErrorIs(t, err, crypto.ErrInvalidSignatureLength)
	})
}
