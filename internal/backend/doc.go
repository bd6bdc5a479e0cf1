// Package backend is the execution core of the server: it turns a model
// configuration into a pool of device-bound execution contexts and runs
// groups of requests on them, one batched runtime call per group.
//
// Files by concern:
//
//   - runtime.go: the Runtime contract every framework variant implements.
//   - resolver.go: instance groups and compute capability to a list of instances.
//   - context.go: one loaded instance, schema validation, state machine.
//   - assemble.go: fan-in of many payloads into one batched input tensor.
//   - dispatch.go: the single runtime invocation for a group.
//   - distribute.go: fan-out of batched outputs back to each payload.
//   - guard.go: run-scoped tensor handles released on every exit path.
//   - convert.go: element conversion between runtime and declared datatypes.
//   - backend.go: model-level pool, runner index to context mapping.
//   - metrics.go: prometheus run metrics.
//   - errors.go: error types and IsX helpers.
//
// A Context is driven by exactly one worker. The package starts no
// goroutines on the run path; parallelism across contexts is the caller's.
package backend
