// Package driving defines the interfaces the command line uses to run the
// engine: the sync orchestrator, the scheduler that triggers it, and
// read access to synced documents.
//
// Implementations live in internal/core/services.
package driving
