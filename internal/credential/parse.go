package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ParsedJWT is a compact JWT split into its parts without verification.
type ParsedJWT struct {
	Raw          string
	Header       map[string]interface{}
	Claims       *Claims
	SigningInput string
	Signature    string
}

// Envelope is a credential as presented for verification: either a JWT or
// a bare JSON credential (JWT is nil then).
type Envelope struct {
	Credential *Credential
	JWT        *ParsedJWT
}

// IssuerDID returns the JWT iss claim, falling back to the credential issuer.
func (e *Envelope) IssuerDID() string {
	if e.JWT != nil && e.JWT.Claims.Issuer != "" {
		return e.JWT.Claims.Issuer
	}
	if e.Credential != nil {
		return e.Credential.Issuer
	}
	return ""
}

var parser = jwt.NewParser()

// ParseJWT splits and decodes a compact JWT carrying a vc claim.
func ParseJWT(token string) (*ParsedJWT, error) {
	token = strings.TrimSpace(token)
	claims := &Claims{}
	parsed, parts, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("parse jwt: %w", err)
	}
	if parsed.Method == nil || parsed.Method.Alg() != SigningMethodES256K.Alg() {
		return nil, fmt.Errorf("parse jwt: unsupported alg %v", parsed.Header["alg"])
	}
	if claims.VC == nil {
		return nil, errors.New("parse jwt: payload has no vc claim")
	}
	return &ParsedJWT{
		Raw:          token,
		Header:       parsed.Header,
		Claims:       claims,
		SigningInput: parts[0] + "." + parts[1],
		Signature:    parts[2],
	}, nil
}

// Parse accepts either a compact JWT or a JSON credential document.
func Parse(raw string) (*Envelope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("credential is empty")
	}

	if strings.HasPrefix(raw, "{") {
		var cred Credential
		if err := json.Unmarshal([]byte(raw), &cred); err != nil {
			return nil, fmt.Errorf("parse credential json: %w", err)
		}
		return &Envelope{Credential: &cred}, nil
	}

	parsed, err := ParseJWT(raw)
	if err != nil {
		return nil, err
	}
	return &Envelope{Credential: parsed.Claims.VC, JWT: parsed}, nil
}
