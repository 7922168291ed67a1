package credflow

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/credflow/internal/actions"
	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/did"
	"github.com/petrijr/credflow/internal/engine"
	"github.com/petrijr/credflow/internal/keystore"
	"github.com/petrijr/credflow/internal/notify"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine                = api.Engine
	ProcessFlow           = api.ProcessFlow
	Trigger               = api.Trigger
	TriggerInput          = api.TriggerInput
	TriggerPayload        = api.TriggerPayload
	Action                = api.Action
	ActionType            = api.ActionType
	ActionHandler         = api.ActionHandler
	ActionHandlerFunc     = api.ActionHandlerFunc
	ActionRequest         = api.ActionRequest
	ActionInput           = api.ActionInput
	ClaimValue            = api.ClaimValue
	ParameterReference    = api.ParameterReference
	IssueCredentialInput  = api.IssueCredentialInput
	VerifyCredentialInput = api.VerifyCredentialInput
	SendEmailInput        = api.SendEmailInput
	WorkflowOutcome       = api.WorkflowOutcome
	ActionOutcome         = api.ActionOutcome
	OutcomeFilter         = api.OutcomeFilter
	WorkflowState         = api.WorkflowState
	Observer              = api.Observer
	BasicMetrics          = api.BasicMetrics
	NoopObserver          = api.NoopObserver

	KeyStore           = keystore.Store
	Mailer             = notify.Mailer
	CredentialVerifier = actions.CredentialVerifier
)

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	Static      = api.Static
	FromTrigger = api.FromTrigger
	FromSetting = api.FromSetting
	FromOutcome = api.FromOutcome
)

const (
	StateNotStarted = api.WorkflowNotStarted
	StateRunning    = api.WorkflowRunning
	StateSuccess    = api.WorkflowSuccess
	StateFailed     = api.WorkflowFailed

	ClaimStatic       = api.ClaimStatic
	ClaimTriggerInput = api.ClaimTriggerInput
)

// Options configures the built-in action handlers and the observer of an
// engine. Action types whose collaborator is nil are not registered, and
// flows using them fail at run time.
type Options struct {
	// Settings are the values FromSetting references resolve against.
	Settings map[string]string

	Keys     KeyStore
	Verifier CredentialVerifier
	Mailer   Mailer

	// Handlers adds custom action types. Registering a built-in type
	// panics.
	Handlers map[ActionType]ActionHandler

	Observer Observer
	// Logger, when set and Observer is nil, logs lifecycle events.
	Logger *slog.Logger
}

func (o Options) engineConfig() engine.Config {
	obs := o.Observer
	if obs == nil && o.Logger != nil {
		obs = api.NewLoggingObserver(o.Logger)
	}
	reg := actions.NewRegistry(actions.Deps{
		Params:   params.NewResolver(o.Settings),
		Keys:     o.Keys,
		Verifier: o.Verifier,
		Mailer:   o.Mailer,
	})
	for t, h := range o.Handlers {
		reg.MustRegister(t, h)
	}
	return engine.Config{Handlers: reg, Observer: obs, Logger: o.Logger}
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(opts Options) Engine {
	return engine.NewInMemoryEngine(opts.engineConfig())
}

// NewSQLiteEngine returns an Engine that keeps workflows, outcomes and
// lifecycle events in a SQLite database.
func NewSQLiteEngine(db *sql.DB, opts Options) (Engine, error) {
	return engine.NewSQLiteEngine(db, opts.engineConfig())
}

// NewPostgresEngine returns an Engine that persists to PostgreSQL. It
// creates the schema on first use.
func NewPostgresEngine(ctx context.Context, db persistence.DBInterface, opts Options) (Engine, error) {
	if err := persistence.NewPostgresStore(db).InitSchema(ctx); err != nil {
		return nil, err
	}
	return engine.NewPostgresEngine(db, opts.engineConfig()), nil
}

// NewRedisEngine returns an Engine that persists to Redis.
func NewRedisEngine(client *redis.Client, opts Options) Engine {
	return engine.NewRedisEngine(client, opts.engineConfig())
}

// NewMongoEngine returns an Engine that persists to the named MongoDB
// database ("credflow" when empty).
func NewMongoEngine(client *mongo.Client, dbName string, opts Options) Engine {
	return engine.NewMongoEngine(client, dbName, opts.engineConfig())
}

// NewMemoryKeyStore returns an in-process key store that also accepts keys.
func NewMemoryKeyStore() *keystore.MemoryStore {
	return keystore.NewMemoryStore()
}

// Run triggers workflowID and executes the run in the calling goroutine.
// The outcome is returned even when the run fails.
func Run(ctx context.Context, eng Engine, workflowID string, payload TriggerPayload) (*WorkflowOutcome, error) {
	out, err := eng.Trigger(ctx, workflowID, payload)
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, out.ID)
}

// GetOutcome fetches an outcome by ID.
func GetOutcome(ctx context.Context, eng Engine, id string) (*WorkflowOutcome, error) {
	return eng.GetOutcome(ctx, id)
}

// ListOutcomes lists outcomes matching filter.
func ListOutcomes(ctx context.Context, eng Engine, filter OutcomeFilter) ([]*WorkflowOutcome, error) {
	return eng.ListOutcomes(ctx, filter)
}

// NewLogMailer returns a Mailer that logs messages instead of sending them.
func NewLogMailer(logger *slog.Logger) Mailer {
	return notify.LogMailer{Logger: logger}
}

// NewOfflineVerifier returns a verifier that only accepts long-form issuer
// DIDs, whose keys are decoded locally. Revocation checks fail without a
// status list fetcher, so leave CheckRevocation off.
func NewOfflineVerifier(logger *slog.Logger) CredentialVerifier {
	return credential.NewVerifier(did.NewKeyResolver(nil, logger), nil)
}

// GenerateIssuerKey creates a secp256k1 key pair, stores the private key
// for tenantID in keys and returns the long-form DID of the issuer.
func GenerateIssuerKey(ctx context.Context, keys keystore.Writer, tenantID string) (string, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	issuer := did.NewLongFormDID(priv.PubKey())
	if err := keys.PutPrivateKey(ctx, tenantID, issuer, priv.Serialize()); err != nil {
		return "", err
	}
	return issuer, nil
}
