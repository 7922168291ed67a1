package actions

import (
	"context"
	"strings"

	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/pkg/api"
)

// CredentialVerifier is satisfied by *credential.Verifier.
type CredentialVerifier interface {
	Verify(ctx context.Context, raw string, opts credential.VerifyOptions) (*credential.VerificationReport, error)
}

// VerifyCredential verifies a credential and fails unless it is valid. The
// verification report is the action output in both cases.
type VerifyCredential struct {
	Params   *params.Resolver
	Verifier CredentialVerifier
}

func (h *VerifyCredential) Handle(ctx context.Context, req *api.ActionRequest) error {
	in := req.Action.Input.VerifyCredential
	if in == nil {
		return api.Errorf(api.KindConfiguration, "action %s has no verifyCredential input", req.ActionID)
	}

	raw, err := h.Params.Resolve(in.CredentialReference, req.Context, req.Previous)
	if err != nil {
		return api.NewError(api.KindConfiguration, "Credential is required", err)
	}

	report, err := h.Verifier.Verify(ctx, raw, credential.VerifyOptions{
		CheckSignature:     in.CheckSignature,
		CheckExpiry:        in.CheckExpiry,
		CheckRevocation:    in.CheckRevocation,
		CheckSchema:        in.CheckSchema,
		CheckTrustRegistry: in.CheckTrustRegistry,
	})
	if report != nil {
		if outErr := req.SetOutput(report); outErr != nil && err == nil {
			return outErr
		}
	}
	if err != nil {
		return err
	}
	if !report.IsValid {
		return api.Errorf(api.KindData, "credential is not valid: %s", strings.Join(failedChecks(report), ", "))
	}
	return nil
}

func failedChecks(r *credential.VerificationReport) []string {
	var out []string
	if !r.SignatureValid {
		out = append(out, "invalid signature")
	}
	if r.IsExpired {
		out = append(out, "expired")
	}
	if r.IsRevoked {
		out = append(out, "revoked")
	}
	if !r.InTrustRegistry {
		out = append(out, "issuer not in trust registry")
	}
	return out
}
