package credential

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v4"
)

// SigningMethodES256K implements ES256K (ECDSA over secp256k1 with SHA-256)
// for golang-jwt. Signatures are the raw 64-byte r||s form, never DER.
var SigningMethodES256K = &signingMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(SigningMethodES256K.Alg(), func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

type signingMethodES256K struct{}

func (m *signingMethodES256K) Alg() string { return "ES256K" }

// Sign expects a *secp256k1.PrivateKey.
func (m *signingMethodES256K) Sign(signingString string, key interface{}) (string, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return "", jwt.ErrInvalidKeyType
	}
	hash := sha256.Sum256([]byte(signingString))
	// SignCompact prefixes a recovery byte; the remaining 64 bytes are r||s.
	compact := ecdsa.SignCompact(priv, hash[:], false)
	return jwt.EncodeSegment(compact[1:]), nil
}

// Verify expects a *secp256k1.PublicKey.
func (m *signingMethodES256K) Verify(signingString, signature string, key interface{}) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	sig, err := jwt.DecodeSegment(signature)
	if err != nil {
		return err
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return jwt.ErrSignatureInvalid
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return jwt.ErrSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !ecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
