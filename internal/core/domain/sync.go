package domain

import "time"

// EndOfResultSet is the continuation token the search endpoint returns on its last page.
const EndOfResultSet = "EndofResultSet"

// DefaultCursorLookback is how far back a first-ever run starts.
const DefaultCursorLookback = 30 * 24 * time.Hour

// Window is the [From, To) range one sync cycle searches.
type Window struct {
	From time.Time
	To   time.Time
}

// Empty returns true if the window contains no instants.
func (w Window) Empty() bool {
	return !w.From.Before(w.To)
}

// SearchQuery is one request to the search endpoint.
type SearchQuery struct {
	// Window bounds the search. Nil omits the date filters entirely.
	Window *Window

	// ContinuationToken is empty on the first page of a query.
	ContinuationToken string

	PageSize int
}

// SearchPage is one page of search results.
type SearchPage struct {
	Documents []DocumentSummary

	// NextPage is the continuation token for the following page.
	// Empty or EndOfResultSet means pagination is complete.
	NextPage string
}

// HasNext returns true if another page can be requested.
func (p *SearchPage) HasNext() bool {
	return p.NextPage != "" && p.NextPage != EndOfResultSet
}

// DetailSource selects which remote endpoint enriches a summary.
type DetailSource string

const (
	// DetailSourceDetails uses GET /documents/{uuid}/details.
	DetailSourceDetails DetailSource = "details"
	// DetailSourceRaw uses GET /documents/{uuid}/raw.
	DetailSourceRaw DetailSource = "raw"
)

// UpsertOutcome describes what an upsert did to the stored document.
type UpsertOutcome string

const (
	UpsertCreated   UpsertOutcome = "created"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// UpsertResult is the per-document result of a batched upsert.
type UpsertResult struct {
	UUID    string
	Outcome UpsertOutcome
	Err     error
}

// SyncPhase names the states of one sync cycle.
type SyncPhase string

const (
	PhaseStart         SyncPhase = "start"
	PhaseFetchCursor   SyncPhase = "fetch_cursor"
	PhaseSearch        SyncPhase = "search"
	PhaseFanOutDetail  SyncPhase = "fan_out_detail"
	PhasePersist       SyncPhase = "persist"
	PhaseAdvanceCursor SyncPhase = "advance_cursor"
	PhaseDone          SyncPhase = "done"
	PhaseFailed        SyncPhase = "failed"
)

// SyncReport summarises one sync cycle.
type SyncReport struct {
	RunID  string
	Window Window

	Pages            int
	DocumentsSeen    int
	Created          int
	Updated          int
	Unchanged        int
	DetailFailures   int
	PersistFailures  int
	CursorAdvanced   bool
	CursorAdvancedTo time.Time

	StartedAt time.Time
	Duration  time.Duration
}

// Persisted returns the number of documents written or confirmed unchanged.
func (r *SyncReport) Persisted() int {
	return r.Created + r.Updated + r.Unchanged
}

// Failures returns the number of per-document failures in the cycle.
func (r *SyncReport) Failures() int {
	return r.DetailFailures + r.PersistFailures
}
