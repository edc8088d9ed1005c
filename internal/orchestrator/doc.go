// Package orchestrator runs agent sessions.
//
// An Agent owns one session: its event history, its plan program and the
// TaskGraph that program produced. Each iteration of the loop
//   - updates the plan through an additive synthesis pass,
//   - indexes the options on screen into a catalog and ranks them,
//   - executes every ranked link plus at most one action or close_window.
//
// The loop ends when every task is completed, when the ranker comes back
// empty too many times in a row, or when the iteration cap is hit. Pausing
// halts it between iterations with all state preserved for Resume.
//
// A Pool hosts many sessions side by side:
//
//	pool := orchestrator.NewPool(factory, sink, logger)
//	defer pool.Close()
//	id, err := pool.Submit("Send Ada the quarterly report")
//	_ = pool.Pause(id)
package orchestrator
