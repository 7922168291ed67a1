package actions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/keystore"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/pkg/api"
)

// IssueOutput is the output of an IssueCredential action.
type IssueOutput struct {
	Credential string `json:"credential"`
	IssuerDID  string `json:"issuerDid"`
	SubjectDID string `json:"subjectDid"`
}

// IssueCredential builds and signs a credential with the tenant's issuing key.
type IssueCredential struct {
	Params *params.Resolver
	Keys   keystore.Store
	Now    func() time.Time
}

func (h *IssueCredential) Handle(ctx context.Context, req *api.ActionRequest) error {
	in := req.Action.Input.IssueCredential
	if in == nil {
		return api.Errorf(api.KindConfiguration, "action %s has no issueCredential input", req.ActionID)
	}

	subject, err := h.Params.Resolve(in.SubjectDID, req.Context, req.Previous)
	if err != nil || strings.TrimSpace(subject) == "" {
		return api.NewError(api.KindConfiguration, credential.MsgSubjectRequired, err)
	}
	issuer, err := h.Params.Resolve(in.IssuerDID, req.Context, req.Previous)
	if err != nil || strings.TrimSpace(issuer) == "" {
		return api.NewError(api.KindConfiguration, credential.MsgIssuerRequired, err)
	}

	var validUntil *time.Time
	if in.ValidUntil != nil {
		raw, err := h.Params.Resolve(*in.ValidUntil, req.Context, req.Previous)
		if err != nil {
			return api.NewError(api.KindConfiguration, credential.MsgCreateFailed, err)
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return api.NewError(api.KindData, credential.MsgCreateFailed, err)
		}
		validUntil = &t
	}

	cred, err := credential.Build(credential.BuildRequest{
		IssuerDID:  issuer,
		SubjectDID: subject,
		Claims:     params.ResolveClaims(in.Claims, req.Context),
		ValidUntil: validUntil,
		Now:        h.Now(),
	})
	if err != nil {
		return api.NewError(api.KindConfiguration, credential.MsgCreateFailed, err)
	}

	var tenantID string
	if req.Context != nil {
		tenantID = req.Context.TenantID
	}
	key, err := h.Keys.GetPrivateKey(ctx, tenantID, issuer)
	if err != nil {
		kind := api.KindResolution
		if errors.Is(err, keystore.ErrKeyNotFound) {
			kind = api.KindConfiguration
		}
		return api.NewError(kind, credential.MsgKeyFailed, err)
	}

	jwt, err := credential.Sign(cred, key)
	if err != nil {
		return err
	}

	return req.SetOutput(IssueOutput{
		Credential: jwt,
		IssuerDID:  issuer,
		SubjectDID: subject,
	})
}
