// Package driven lists what the core needs from infrastructure:
//
//   - CredentialSource: bearer credentials for the remote API
//   - DocumentAPI: search and per-document detail
//   - DocumentStore: idempotent invoice and line persistence
//   - CursorStore: the durable sync watermark
//   - SchedulerStore: task state and run history
//
// Implementations live under internal/adapters/driven. This package
// imports domain and nothing else from internal/.
package driven
