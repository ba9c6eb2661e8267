package crypto

import (
	"errors"

	"github.com/NethermindEth/starknet-replay/core/felt"
	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
)

var ErrInvalidSignatureLength = errors.New("signature must consist of exactly two felts (r, s)")

// PublicKey is an affine point on the Stark curve.
type PublicKey struct {
	X felt.Felt
	Y felt.Felt
}

// SignatureVerifier is the primitive account contracts call to authenticate
// a transaction hash. Implementations must be safe for concurrent use.
type SignatureVerifier interface {
	Verify(key PublicKey, msgHash *felt.Felt, signature []felt.Felt) (bool, error)
}

type StarkVerifier struct{}

var _ SignatureVerifier = StarkVerifier{}

func (StarkVerifier) Verify(key PublicKey, msgHash *felt.Felt, signature []felt.Felt) (bool, error) {
	if len(signature) != 2 {
		return false, ErrInvalidSignatureLength
	}

	pub := ecdsa.PublicKey{A: starkcurve.G1Affine{X: *key.X.Impl(), Y: *key.Y.Impl()}}
	r, s := signature[0].Bytes(), signature[1].Bytes()
	sig := make([]byte, 0, 2*felt.Bytes)
	sig = append(sig, r[:]...)
	sig = append(sig, s[:]...)

	msg := msgHash.Bytes()
	return pub.Verify(sig, msg[:], nil)
}

// Sign produces an (r, s) signature over msgHash that StarkVerifier accepts.
func Sign(privKey *ecdsa.PrivateKey, msgHash *felt.Felt) ([]felt.Felt, error) {
	msg := msgHash.Bytes()
	sigBytes, err := privKey.Sign(msg[:], nil)
	if err != nil {
		return nil, err
	}

	sig := make([]felt.Felt, 0, 2)
	for start := 0; start < len(sigBytes); start += felt.Bytes {
		end := min(start+felt.Bytes, len(sigBytes))
		sig = append(sig, felt.FromBytes(sigBytes[start:end]))
	}
	return sig, nil
}

func PublicKeyOf(privKey *ecdsa.PrivateKey) PublicKey {
	return PublicKey{
		X: felt.Felt(privKey.PublicKey.A.X),
		Y: felt.Felt(privKey.PublicKey.A.Y),
	}
}
