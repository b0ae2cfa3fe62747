package ingest

import "time"

// Status classifies the outcome of one ticker within a run.
type Status string

const (
	StatusFetched Status = "fetched"
	StatusNoData  Status = "no_data"
	StatusFailed  Status = "failed"
)

// TickerOutcome summarises what one ticker contributed to a run.
type TickerOutcome struct {
	Ticker     string
	Status     Status
	Fetched    int
	New        int
	Duplicates int
	Rejected   int
	Err        error
}

// Report describes a finished updater run.
type Report struct {
	StartedAt     time.Time
	Outcomes      []TickerOutcome
	Appended      int
	HeaderWritten bool

	// Pending counts rows a dry run would have appended.
	Pending int

	// StoreUnreadable is set when the existing store could not be parsed and
	// the run proceeded with an empty key set.
	StoreUnreadable bool

	// Skipped is set when another updater held the lock.
	Skipped bool
}

// Failed lists tickers whose fetch failed.
func (r Report) Failed() []string { return r.tickersWith(StatusFailed) }

// NoData lists tickers for which the source returned nothing.
func (r Report) NoData() []string { return r.tickersWith(StatusNoData) }

func (r Report) tickersWith(s Status) []string {
	out := make([]string, 0)
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o.Ticker)
		}
	}
	return out
}
