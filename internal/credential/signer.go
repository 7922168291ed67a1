package credential

import (
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-jwt/jwt/v4"

	"github.com/petrijr/credflow/pkg/api"
)

// PrivateKeySize is the length of a raw secp256k1 private key.
const PrivateKeySize = 32

// Stage specific failure messages of issuance.
const (
	MsgSubjectRequired = "Subject DID is required"
	MsgIssuerRequired  = "Issuer DID is required"
	MsgCreateFailed    = "Failed to create credential"
	MsgSignFailed      = "Failed to sign credential"
	MsgKeyFailed       = "Failed to resolve signing key"
)

// Claims is the JWT payload of an issued credential.
type Claims struct {
	Issuer  string      `json:"iss"`
	Subject string      `json:"sub"`
	VC      *Credential `json:"vc"`
}

// Valid satisfies jwt.Claims. Temporal validity of a credential is judged by
// the verifier from the vc dates, not from registered JWT claims.
func (c *Claims) Valid() error { return nil }

// ParsePrivateKey decodes a raw 32-byte secp256k1 private key.
func ParsePrivateKey(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("private key is zero or not below the curve order")
	}
	return priv, nil
}

// Sign encodes cred as a compact ES256K JWT with iss and sub taken from the
// credential's issuer and first subject.
func Sign(cred *Credential, key []byte) (string, error) {
	priv, err := ParsePrivateKey(key)
	if err != nil {
		return "", api.NewError(api.KindCryptographic, MsgSignFailed, err)
	}
	var subject string
	if len(cred.Subjects) > 0 {
		subject = cred.Subjects[0].ID
	}

	token := jwt.NewWithClaims(SigningMethodES256K, &Claims{
		Issuer:  cred.Issuer,
		Subject: subject,
		VC:      cred,
	})
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", api.NewError(api.KindCryptographic, MsgSignFailed, err)
	}
	return signed, nil
}

// IssueRequest is the input of Issue.
type IssueRequest struct {
	SubjectDID string
	IssuerDID  string
	Claims     map[string]string
	ValidFrom  *time.Time
	ValidUntil *time.Time
	PrivateKey []byte
	// Now overrides the clock; zero means time.Now.
	Now time.Time
}

// Issue builds and signs a credential, returning the compact JWT.
//
// Failures carry a stage specific message: MsgCreateFailed when the
// credential cannot be built, MsgSignFailed when the key is unusable.
func Issue(req IssueRequest) (string, error) {
	if strings.TrimSpace(req.SubjectDID) == "" {
		return "", api.Errorf(api.KindConfiguration, MsgSubjectRequired)
	}
	if strings.TrimSpace(req.IssuerDID) == "" {
		return "", api.Errorf(api.KindConfiguration, MsgIssuerRequired)
	}

	cred, err := Build(BuildRequest{
		IssuerDID:  req.IssuerDID,
		SubjectDID: req.SubjectDID,
		Claims:     req.Claims,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Now:        req.Now,
	})
	if err != nil {
		return "", api.NewError(api.KindConfiguration, MsgCreateFailed, err)
	}
	return Sign(cred, req.PrivateKey)
}
