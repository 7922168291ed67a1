package api

import (
	"encoding/json"
	"time"
)

// TriggerType identifies how a workflow run is started.
type TriggerType string

const (
	TriggerHTTPRequest       TriggerType = "HttpRequest"
	TriggerRecurringTimer    TriggerType = "RecurringTimer"
	TriggerWalletInteraction TriggerType = "WalletInteraction"
	TriggerManual            TriggerType = "Manual"
)

// ActionType identifies the handler that executes an action.
type ActionType string

const (
	ActionIssueCredential  ActionType = "IssueCredential"
	ActionVerifyCredential ActionType = "VerifyCredential"
	ActionSendEmail        ActionType = "SendEmail"
)

// RunAfterStatus is the predecessor status an action waits for.
// Only RunAfterSucceeded is accepted by chain validation.
type RunAfterStatus string

const (
	RunAfterSucceeded RunAfterStatus = "Succeeded"
)

// ProcessFlow is a workflow definition: one trigger and a linear chain of
// actions linked through RunAfter.
//
// Actions is keyed by opaque action id. The map form mirrors how flows are
// authored and stored; the engine turns it into an ordered chain before
// running it (see BuildChain in internal/engine).
type ProcessFlow struct {
	ID       string            `json:"id" validate:"required"`
	TenantID string            `json:"tenantId" validate:"required"`
	Name     string            `json:"name,omitempty"`
	Trigger  *Trigger          `json:"trigger" validate:"required"`
	Actions  map[string]Action `json:"actions" validate:"dive"`
}

// Trigger is the entry point of a workflow.
type Trigger struct {
	ID    string       `json:"id" validate:"required"`
	Type  TriggerType  `json:"type" validate:"required,oneof=HttpRequest RecurringTimer WalletInteraction Manual"`
	Input TriggerInput `json:"input"`
}

// TriggerInput holds trigger-type specific configuration.
type TriggerInput struct {
	// Method and Parameters describe an HttpRequest trigger. Parameters lists
	// the names callers are expected to supply; it is informational.
	Method     string   `json:"method,omitempty"`
	Parameters []string `json:"parameters,omitempty"`

	// Cron is the schedule of a RecurringTimer trigger (standard 5-field spec).
	Cron string `json:"cron,omitempty"`

	// MessageType filters WalletInteraction triggers.
	MessageType string `json:"messageType,omitempty"`
}

// RunAfter names the single predecessor of an action. PredecessorID is either
// the trigger id or another action's id.
type RunAfter struct {
	PredecessorID string         `json:"predecessorId" validate:"required"`
	Status        RunAfterStatus `json:"status" validate:"required"`
}

// Action is one step in the chain. Input is a closed union: exactly the field
// matching Type must be set.
type Action struct {
	Type     ActionType  `json:"type" validate:"required"`
	Input    ActionInput `json:"input"`
	RunAfter RunAfter    `json:"runAfter"`
}

// ActionInput carries the typed input of an action; one pointer per action kind.
type ActionInput struct {
	IssueCredential  *IssueCredentialInput  `json:"issueCredential,omitempty"`
	VerifyCredential *VerifyCredentialInput `json:"verifyCredential,omitempty"`
	SendEmail        *SendEmailInput        `json:"sendEmail,omitempty"`
}

// ClaimValueType selects where a claim value comes from.
type ClaimValueType string

const (
	ClaimStatic       ClaimValueType = "Static"
	ClaimTriggerInput ClaimValueType = "TriggerInput"
)

// ClaimValue is a single claim of an issued credential. For ClaimStatic, Value
// is the literal; for ClaimTriggerInput, Value is the trigger input key.
type ClaimValue struct {
	Type  ClaimValueType `json:"type" validate:"required,oneof=Static TriggerInput"`
	Value string         `json:"value"`
}

// IssueCredentialInput configures an IssueCredential action.
type IssueCredentialInput struct {
	SubjectDID ParameterReference    `json:"subjectDid"`
	IssuerDID  ParameterReference    `json:"issuerDid"`
	Claims     map[string]ClaimValue `json:"claims,omitempty" validate:"dive"`

	// ValidUntil optionally resolves to an RFC 3339 expiration timestamp.
	ValidUntil *ParameterReference `json:"validUntil,omitempty"`
}

// VerifyCredentialInput configures a VerifyCredential action.
type VerifyCredentialInput struct {
	CredentialReference ParameterReference `json:"credentialReference"`
	CheckSignature      bool               `json:"checkSignature"`
	CheckExpiry         bool               `json:"checkExpiry"`
	CheckRevocation     bool               `json:"checkRevocationStatus"`
	CheckSchema         bool               `json:"checkSchema"`
	CheckTrustRegistry  bool               `json:"checkTrustRegistry"`
}

// SendEmailInput configures a SendEmail action. Subject and Body may contain
// {{name}} placeholders which are replaced by the resolved Parameters.
type SendEmailInput struct {
	To         ParameterReference            `json:"to"`
	Subject    string                        `json:"subject" validate:"required"`
	Body       string                        `json:"body"`
	Parameters map[string]ParameterReference `json:"parameters,omitempty"`
}

// TriggerPayload is the raw input captured when a run was triggered.
type TriggerPayload struct {
	Query      map[string]string `json:"query,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// ExecutionContext is the per-run input bag handed to every action handler.
// Input keys are lower-cased.
type ExecutionContext struct {
	TenantID string            `json:"tenantId"`
	Input    map[string]string `json:"input"`
}

// Lookup returns the input value for key, matching case-insensitively.
func (c *ExecutionContext) Lookup(key string) (string, bool) {
	if c == nil || c.Input == nil {
		return "", false
	}
	v, ok := c.Input[lowerKey(key)]
	return v, ok
}
