// Package did parses PRISM decentralized identifiers and recovers the
// secp256k1 public key an issuer signs with.
//
// Long-form DIDs (did:prism:<hash>:<state>) carry their creation operation
// inline and can be decoded locally; short-form DIDs (did:prism:<hash>) must
// be resolved through a DocumentResolver.
package did

import (
	"errors"
	"strings"

	"github.com/petrijr/credflow/pkg/api"
)

// PrismPrefix is the method prefix accepted for signature verification.
const PrismPrefix = "did:prism:"

var (
	// ErrDeactivated is returned by resolvers when the DID was deactivated.
	ErrDeactivated = errors.New("did deactivated")
	// ErrUnreachable is returned by resolvers when the resolution service
	// could not be reached or answered with a server error.
	ErrUnreachable = errors.New("did resolver unreachable")
	// ErrNotFound is returned by resolvers when the DID is unknown.
	ErrNotFound = errors.New("did not found")
)

// Form distinguishes long-form from short-form PRISM DIDs.
type Form int

const (
	ShortForm Form = iota + 1
	LongForm
)

func (f Form) String() string {
	switch f {
	case ShortForm:
		return "short"
	case LongForm:
		return "long"
	default:
		return "unknown"
	}
}

// DID is a parsed did:prism identifier.
type DID struct {
	Raw  string
	Form Form
	// Hash is the hex sha256 of the initial state.
	Hash string
	// EncodedState is the base64url AtalaOperation; empty for short-form.
	EncodedState string
}

// ShortForm returns the canonical short-form DID.
func (d DID) ShortForm() string {
	return PrismPrefix + d.Hash
}

// Parse classifies a PRISM DID by its colon-segment count: 3 segments is
// short-form, 4 is long-form. Anything else, including other DID methods, is
// a KindConfiguration error.
func Parse(s string) (DID, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, PrismPrefix) {
		return DID{}, api.Errorf(api.KindConfiguration, "unsupported DID method: %q", s)
	}

	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return DID{}, api.Errorf(api.KindConfiguration, "malformed DID: %q", s)
		}
	}

	switch len(parts) {
	case 3:
		return DID{Raw: s, Form: ShortForm, Hash: parts[2]}, nil
	case 4:
		return DID{Raw: s, Form: LongForm, Hash: parts[2], EncodedState: parts[3]}, nil
	default:
		return DID{}, api.Errorf(api.KindConfiguration, "malformed DID: %q has %d segments", s, len(parts))
	}
}
