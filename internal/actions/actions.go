// Package actions implements the built-in action handlers: credential
// issuance, credential verification and e-mail notification.
package actions

import (
	"time"

	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/engine"
	"github.com/petrijr/credflow/internal/keystore"
	"github.com/petrijr/credflow/internal/notify"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/pkg/api"
)

// Deps are the collaborators of the built-in handlers. A nil Verifier or
// Mailer leaves the corresponding action type unregistered.
type Deps struct {
	Params   *params.Resolver
	Keys     keystore.Store
	Verifier CredentialVerifier
	Mailer   notify.Mailer
	Now      func() time.Time
}

// NewRegistry returns a HandlerRegistry holding the built-in handlers.
func NewRegistry(d Deps) *engine.HandlerRegistry {
	if d.Params == nil {
		d.Params = params.NewResolver(nil)
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r := engine.NewHandlerRegistry()
	if d.Keys != nil {
		r.MustRegister(api.ActionIssueCredential, &IssueCredential{Params: d.Params, Keys: d.Keys, Now: d.Now})
	}
	if d.Verifier != nil {
		r.MustRegister(api.ActionVerifyCredential, &VerifyCredential{Params: d.Params, Verifier: d.Verifier})
	}
	if d.Mailer != nil {
		r.MustRegister(api.ActionSendEmail, &SendEmail{Params: d.Params, Mailer: d.Mailer, Now: d.Now})
	}
	return r
}

var _ CredentialVerifier = (*credential.Verifier)(nil)
