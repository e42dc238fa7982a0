// Package logger provides the swarm's leveled logging sinks: a colorized
// console renderer and a file renderer, both implementing events.Sink so
// they plug into the orchestrator's bus the same way display.WaveProgress
// and events.NATSSink do. Both keep the teacher's leveled-logging
// architecture (trace/debug/info/warn/error filtering, timestamped lines,
// a dedicated run log with a latest.log symlink) but render the swarm's
// own event kinds instead of Claude-Code-QC-specific call sites.
package logger
