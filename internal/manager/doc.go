// Package manager supervises the two local inference servers and arbitrates
// the accelerator memory between them. It is structured into small files by
// concern:
//
//   - manager.go: Manager facade over both servers; status, autostart, close.
//   - lifecycle.go: shared state machine (stopped/starting/running/...)
//     embedded by both server kinds, plus the consumer interfaces.
//   - text.go: TextServer, one long-lived llama.cpp server process.
//   - image.go / image_http.go: ImageServer, a per-job diffusion binary
//     behind a small HTTP wrapper this package serves itself.
//   - arbiter.go: ResourceArbiter, offloads and restores the text server
//     around image jobs that do not fit in memory.
//   - health.go: readiness polling with exponential backoff.
//   - jobs.go / progress.go: single-slot job admission and phase-based
//     progress estimation for generations.
//   - tuning.go: launch argument derivation and persisted launch configs.
//   - loglines.go: server output classification for level-aware relogging.
//   - errors.go: error types with ErrX constructors and IsX helpers.
//   - events.go / eventpub_memory.go: lifecycle event publication.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (e.g. New, StartServer, GenerateImage, Status).
// Internal types are subject to change.
package manager
