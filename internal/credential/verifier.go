package credential

import (
	"context"
	"errors"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/petrijr/credflow/internal/did"
	"github.com/petrijr/credflow/pkg/api"
)

// KeyResolver recovers the public key of an issuer DID.
type KeyResolver interface {
	ResolveKey(ctx context.Context, issuer string) (*secp256k1.PublicKey, error)
}

// VerifyOptions selects the checks Verify runs.
type VerifyOptions struct {
	CheckSignature     bool
	CheckExpiry        bool
	CheckRevocation    bool
	CheckSchema        bool
	CheckTrustRegistry bool
}

// VerificationReport is the outcome of Verify. Flags of checks that were
// not requested keep their passing defaults; schema and trust registry
// checks always report true.
type VerificationReport struct {
	IsValid         bool     `json:"isValid"`
	SignatureValid  bool     `json:"signatureValid"`
	IsExpired       bool     `json:"isExpired"`
	IsRevoked       bool     `json:"isRevoked"`
	SchemaValid     bool     `json:"schemaValid"`
	InTrustRegistry bool     `json:"inTrustRegistry"`
	Errors          []string `json:"errors,omitempty"`
}

// Verifier checks signatures, validity dates and revocation of credentials.
type Verifier struct {
	keys   KeyResolver
	status StatusListFetcher
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier. status may be nil when revocation checks
// are never requested.
func NewVerifier(keys KeyResolver, status StatusListFetcher, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, status: status, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify runs the selected checks on raw, a JWT or JSON credential.
//
// Problems with the credential itself (bad signature, unresolvable or
// deactivated issuer) are reported in the returned report. An error means the
// verification could not be completed: an unparseable credential, a status
// list that could not be fetched, or a cancelled context. The partial report
// is returned alongside such errors when one exists.
func (v *Verifier) Verify(ctx context.Context, raw string, opts VerifyOptions) (*VerificationReport, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, api.NewError(api.KindData, "Failed to parse credential", err)
	}

	report := &VerificationReport{
		SignatureValid:  true,
		SchemaValid:     true,
		InTrustRegistry: true,
	}

	if opts.CheckSignature {
		if err := v.checkSignature(ctx, env); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.SignatureValid = false
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if opts.CheckExpiry {
		report.IsExpired = IsExpired(env.Credential, v.now())
	}

	if opts.CheckRevocation {
		revoked, err := IsRevoked(ctx, v.status, env.Credential.CredentialStatus)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			return report, err
		}
		report.IsRevoked = revoked
	}

	report.IsValid = report.SignatureValid && !report.IsExpired && !report.IsRevoked && report.InTrustRegistry
	return report, nil
}

func (v *Verifier) checkSignature(ctx context.Context, env *Envelope) error {
	if env.JWT == nil {
		return api.Errorf(api.KindData, "signature check requires a JWT credential")
	}
	if err := checkBinding(env.JWT.Claims); err != nil {
		return err
	}
	issuer := env.IssuerDID()
	if _, err := did.Parse(issuer); err != nil {
		return err
	}
	if v.keys == nil {
		return api.Errorf(api.KindConfiguration, "no key resolver configured")
	}

	pub, err := v.keys.ResolveKey(ctx, issuer)
	if err != nil {
		if api.KindOf(err) == "" && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = api.NewError(api.KindResolution, MsgKeyFailed, err)
		}
		return err
	}
	if err := SigningMethodES256K.Verify(env.JWT.SigningInput, env.JWT.Signature, pub); err != nil {
		return api.NewError(api.KindCryptographic, "signature verification failed", err)
	}
	return nil
}

// checkBinding requires the signed iss and sub claims to name the issuer and
// first subject of the embedded credential. The key of iss is the one the
// signature is checked against.
func checkBinding(c *Claims) error {
	if c.Issuer != c.VC.Issuer {
		return api.Errorf(api.KindData, "jwt iss %q does not match vc.issuer %q", c.Issuer, c.VC.Issuer)
	}
	var subject string
	if len(c.VC.Subjects) > 0 {
		subject = c.VC.Subjects[0].ID
	}
	if c.Subject != subject {
		return api.Errorf(api.KindData, "jwt sub %q does not match vc.credentialSubject.id %q", c.Subject, subject)
	}
	return nil
}

// IsExpired reports whether cred is past its validity at now. validUntil
// takes precedence over expirationDate; a credential with neither never
// expires. A credential is still valid at the exact validUntil instant.
func IsExpired(cred *Credential, now time.Time) bool {
	if cred == nil {
		return false
	}
	until := cred.ValidUntil
	if until == nil {
		until = cred.ExpirationDate
	}
	if until == nil {
		return false
	}
	return now.UTC().After(until.UTC())
}
