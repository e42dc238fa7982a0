// Package display renders the orchestrator's event stream (§6) as terminal
// output: a live wave/task progress tally and ad hoc warnings for stuck
// tasks or degraded conditions. It is a thin events.Sink plus a few
// formatting helpers, generalized from the teacher's plan-file loading
// progress bar into the swarm's own phase-progress emitter (§9).
//
// # Progress
//
//	p := display.NewWaveProgress(os.Stdout, 0, true)
//	bus.Register(p)
//
// # Warnings
//
//	w := display.WarnStuckTasks("Tasks exhausted retries", []string{"st-3", "st-7"})
//	w.Display(os.Stderr)
//
// Output goes to a caller-supplied io.Writer (NewWaveProgress's writer,
// Warning.Display's argument) for testability; there is no global state.
package display
