// Package domain holds the entities and errors shared by every layer of
// etasync:
//
//   - DocumentSummary: a search hit returned by the tax authority
//   - DocumentDetail: optional enrichment fetched per document
//   - Document: the persisted merge of a summary and its detail
//   - Credential: a bearer token and its expiry
//   - Window: the [from, to) issuance range searched by one sync cycle
//   - SyncReport: counters describing one cycle
//
// Errors are sentinels matched with errors.Is, plus *AuthError and
// *TransportError for failures that carry an HTTP status.
//
// The package imports only the standard library; nothing in internal/ is
// imported here.
package domain
