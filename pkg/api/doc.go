// Package api contains the core types shared by the credflow engine, its
// stores, its workers and its handlers.
//
// Most users interact with the higher-level credflow package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom integrations, such as writing a new store or queue backend.
//
// # Workflow Definitions
//
// A ProcessFlow has exactly one Trigger and a set of Actions keyed by id.
// Each action names its single predecessor through RunAfter, so the actions
// form a linear chain starting at the trigger. The engine validates the chain
// when a flow is saved and again before it runs.
//
// Action inputs are a closed union (ActionInput): exactly the field matching
// the action's Type is set. Values inside an input are ParameterReferences,
// resolved at execution time from one of four sources:
//
//   - Static: the reference's Path is the value.
//   - TriggerInput: a case-insensitive lookup in the run's ExecutionContext.
//   - AppSettings: a case-insensitive lookup in the configured settings.
//   - ActionOutcome: a gjson path into a previous successful action's output.
//
// # Outcomes
//
// Every run is recorded as a WorkflowOutcome holding one ActionOutcome per
// executed action. Action outcomes move Running -> Success|Failed exactly
// once; the workflow outcome is written to the store once, when the run
// reaches a terminal state.
//
// # Errors
//
// Failures crossing an action boundary are *Error values carrying an
// ErrorKind, so callers can distinguish configuration mistakes from
// unreachable resolvers, deactivated DIDs, bad signatures and malformed data.
//
// # Observability
//
// The Observer interface is used by the engine and workers to report run and
// action transitions. LoggingObserver (log/slog) and BasicMetrics are ready
// made implementations; combine them with NewCompositeObserver.
package api
