// Package services implements the driving port interfaces: the sync
// orchestrator, the scheduler that triggers it, and read access to
// persisted documents. Services depend only on driven ports.
package services
