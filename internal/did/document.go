package did

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/petrijr/credflow/pkg/api"
)

// Document is the subset of a W3C DID document used for key recovery.
type Document struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	// AssertionMethod entries are either a method id (string) or an
	// embedded VerificationMethod object.
	AssertionMethod []json.RawMessage `json:"assertionMethod,omitempty"`
}

// VerificationMethod is one key entry of a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type,omitempty"`
	Controller   string `json:"controller,omitempty"`
	PublicKeyJwk *JWK   `json:"publicKeyJwk,omitempty"`
}

// JWK is an elliptic-curve JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// AssertionKey returns the public key referenced by the document's single
// assertionMethod. Zero or several assertion methods are an error: an
// ambiguous issuer key is never guessed.
func (d *Document) AssertionKey() (*secp256k1.PublicKey, error) {
	if d == nil {
		return nil, api.Errorf(api.KindData, "empty DID document")
	}
	if n := len(d.AssertionMethod); n != 1 {
		return nil, api.Errorf(api.KindData, "DID document must have exactly one assertionMethod, found %d", n)
	}

	vm, err := d.assertionMethod(d.AssertionMethod[0])
	if err != nil {
		return nil, err
	}
	if vm.PublicKeyJwk == nil {
		return nil, api.Errorf(api.KindData, "verification method %q has no publicKeyJwk", vm.ID)
	}
	return vm.PublicKeyJwk.PublicKey()
}

func (d *Document) assertionMethod(raw json.RawMessage) (*VerificationMethod, error) {
	var ref string
	if err := json.Unmarshal(raw, &ref); err != nil {
		var embedded VerificationMethod
		if err := json.Unmarshal(raw, &embedded); err != nil {
			return nil, api.NewError(api.KindData, "invalid assertionMethod entry", err)
		}
		return &embedded, nil
	}

	for i := range d.VerificationMethod {
		if sameMethod(d.VerificationMethod[i].ID, ref) {
			return &d.VerificationMethod[i], nil
		}
	}
	return nil, api.Errorf(api.KindData, "assertionMethod %q does not match any verificationMethod", ref)
}

// sameMethod matches method ids that may be absolute (did:...#frag) or
// relative (#frag) by suffix.
func sameMethod(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.HasSuffix(a, b) || strings.HasSuffix(b, a) {
		return true
	}
	fa, fb := fragment(a), fragment(b)
	return fa != "" && fa == fb
}

func fragment(id string) string {
	if i := strings.LastIndexByte(id, '#'); i >= 0 {
		return id[i+1:]
	}
	return ""
}

// PublicKey reconstructs the secp256k1 key from the JWK. x and y are
// base64url coordinates; when y is absent, x holds a hex-encoded compressed
// key.
func (k *JWK) PublicKey() (*secp256k1.PublicKey, error) {
	if !strings.EqualFold(k.Kty, "EC") {
		return nil, api.Errorf(api.KindData, "unsupported JWK key type %q", k.Kty)
	}
	if k.Crv != "" && !strings.EqualFold(k.Crv, CurveSecp256k1) {
		return nil, api.Errorf(api.KindData, "unsupported JWK curve %q", k.Crv)
	}

	var raw []byte
	if k.Y == "" {
		b, err := hex.DecodeString(k.X)
		if err != nil {
			return nil, api.NewError(api.KindData, "invalid compressed JWK x", err)
		}
		raw = b
	} else {
		x, err := decodeCoordinate(k.X)
		if err != nil {
			return nil, api.NewError(api.KindData, "invalid JWK x", err)
		}
		y, err := decodeCoordinate(k.Y)
		if err != nil {
			return nil, api.NewError(api.KindData, "invalid JWK y", err)
		}
		raw = uncompressed(x, y)
	}

	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, api.NewError(api.KindCryptographic, "invalid public key", err)
	}
	return pub, nil
}

func decodeCoordinate(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// NewJWK returns the JWK form of pub with base64url x and y.
func NewJWK(pub *secp256k1.PublicKey) *JWK {
	raw := pub.SerializeUncompressed()
	return &JWK{
		Kty: "EC",
		Crv: CurveSecp256k1,
		X:   base64.RawURLEncoding.EncodeToString(raw[1:33]),
		Y:   base64.RawURLEncoding.EncodeToString(raw[33:]),
	}
}
