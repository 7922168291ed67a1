// Package credflow runs verifiable credential workflows: a trigger followed
// by a linear chain of actions that issue credentials, verify presented
// credentials and send notifications.
//
// # Core Concepts
//
//  1. ProcessFlow: a workflow definition with one trigger and actions
//     linked through RunAfter.
//  2. Engine: stores flows, records outcomes and executes runs.
//  3. Worker: consumes queued runs and executes them on an Engine.
//  4. FlowBuilder: a fluent way to define linear flows.
//  5. LocalRunner: an in-memory Engine, queue and Worker for development.
//
// # Engine
//
// Trigger records a NotStarted outcome with the raw trigger payload.
// Execute runs it: the action chain is derived from RunAfter links, the
// trigger input is flattened into lower-cased keys, and every action sees
// the outcomes of the ones before it. The first failing action fails the
// run. Each outcome is finalized exactly once.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// # Actions
//
// Three action types are built in:
//
//   - IssueCredential signs a W3C credential as an ES256K JWT with the
//     issuer key from the KeyStore.
//   - VerifyCredential checks signature, validity dates and revocation of a
//     credential taken from the trigger input or an earlier action.
//   - SendEmail renders {{placeholders}} and hands the message to a Mailer.
//
// Action inputs reference values through ParameterReference: literals,
// trigger input keys, tenant settings, or JSON paths into earlier action
// outputs.
//
// # Running
//
// For synchronous use call Run. For queued execution use a WorkerBundle or
// a LocalRunner, or the credflow command which adds the HTTP trigger
// endpoint and the timer scheduler:
//
//	runner := credflow.NewLocalRunner(credflow.Options{Mailer: mailer})
//	flow := credflow.New("welcome", "tenant-1").
//	    HTTPTrigger("POST", "email").
//	    SendEmail("mail", credflow.SendEmailInput{
//	        To:      credflow.FromTrigger("email"),
//	        Subject: "Welcome",
//	    })
//	flow.MustSave(ctx, runner.Engine)
//
//	out, err := credflow.Run(ctx, runner.Engine, flow.ID(), credflow.TriggerPayload{
//	    Query: map[string]string{"email": "ada@example.com"},
//	})
package credflow
