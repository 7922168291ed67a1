// Package worker drives credflow workflow outcomes from a task queue.
//
// A trigger (HTTP request, timer, manual call) records a NotStarted
// WorkflowOutcome and enqueues a task naming it. Workers dequeue those tasks
// and call Engine.Execute, which walks the action chain and finalizes the
// outcome. Many workers may share one queue and one engine; the store's
// finalize-once guarantee means a task delivered twice never produces two
// terminal writes, and the worker treats api.ErrOutcomeFinalized as done.
//
// Typical wiring:
//
//	eng := engine.NewSQLiteEngine(db, cfg)
//	q, _ := taskqueue.NewSQLiteQueue(db)
//	w := worker.New(eng, q, worker.WithLogger(logger))
//
//	out, _ := w.Submit(ctx, "onboarding", payload)
//	go w.Run(ctx, 4)
//
// Run logs failed runs and keeps going; the failure itself is recorded on the
// outcome.
package worker
