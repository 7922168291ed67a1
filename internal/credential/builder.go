package credential

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BuildRequest describes the credential to assemble.
type BuildRequest struct {
	IssuerDID  string
	SubjectDID string
	Claims     map[string]string
	// ValidFrom defaults to Now.
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Now        time.Time
}

// Build assembles an unsigned credential. The issuer must be an absolute URI.
// A claim named "id" is ignored; the subject id always comes from SubjectDID.
func Build(req BuildRequest) (*Credential, error) {
	if err := requireAbsoluteURI("issuer", req.IssuerDID); err != nil {
		return nil, err
	}
	if err := requireAbsoluteURI("subject", req.SubjectDID); err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	validFrom := now.UTC().Truncate(time.Second)
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	if req.ValidUntil != nil && req.ValidUntil.Before(validFrom) {
		return nil, fmt.Errorf("validUntil %s is before validFrom %s",
			req.ValidUntil.UTC().Format(time.RFC3339), validFrom.Format(time.RFC3339))
	}

	claims := make(map[string]any, len(req.Claims))
	for k, v := range req.Claims {
		if k == "id" {
			continue
		}
		claims[k] = v
	}

	return &Credential{
		Context:      []string{ContextV1},
		Type:         []string{TypeVerifiableCredential},
		Issuer:       req.IssuerDID,
		IssuanceDate: &validFrom,
		ValidFrom:    &validFrom,
		ValidUntil:   utc(req.ValidUntil),
		Subjects:     []Subject{{ID: req.SubjectDID, Claims: claims}},
	}, nil
}

func requireAbsoluteURI(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is empty", field)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s %q is not a URI: %w", field, s, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%s %q is not an absolute URI", field, s)
	}
	return nil
}
