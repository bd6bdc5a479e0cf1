// Package manager provides lifecycle, admission, and inference coordination for
// the models of a repository. It is structured into small files by concern:
//
//   - manager.go: core Manager type, readiness and model listing.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: per-model lifecycle state.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, IsBadRequest).
//   - helpers.go: small utilities (model lookup, runtime selection).
//   - ensure.go: LoadModel and the lazy load done on first inference.
//   - unload.go: draining and teardown of a loaded model.
//   - infer.go: request validation, payload construction and submission.
//   - sink.go: collection of per-request outputs written by the backend.
//   - status_report.go: Status reporting for /status.
//
// Each loaded model owns one backend.Backend (its execution contexts) and
// one scheduler.Scheduler feeding it dynamic batches.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., NewWithConfig, Ready, ListModels, Status, Infer).
package manager
