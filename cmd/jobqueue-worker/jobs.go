package main

import (
	"context"
	"fmt"

	"github.com/bobmcallan/jobqueue/registry"
)

// WorkerContext is the family's shared, read-only worker context: the base
// URL of an EODHD-style API every job in this family runs against,
// echoing the teacher's own EOD-collection job shape.
type WorkerContext struct {
	EODHDBaseURL string
}

// FetchQuoteJob fetches a single ticker's latest quote. It is the
// family's simplest job, used mostly to exercise the pull -> run ->
// record loop end to end.
type FetchQuoteJob struct {
	Ticker string `json:"ticker"`
}

// Run stands in for fetching Ticker's quote from the worker context's
// EODHD API: it makes no network call, failing only on an empty Ticker
// and otherwise returning nil.
func (j *FetchQuoteJob) Run(ctx context.Context, wc *WorkerContext) error {
	if j.Ticker == "" {
		return fmt.Errorf("fetch_quote: empty ticker")
	}
	return nil
}

// RefreshFundamentalsJob refreshes a ticker's cached fundamentals.
type RefreshFundamentalsJob struct {
	Ticker string `json:"ticker"`
}

// Run stands in for refreshing Ticker's fundamentals snapshot: it fails
// only on an empty Ticker and otherwise returns nil.
func (j *RefreshFundamentalsJob) Run(ctx context.Context, wc *WorkerContext) error {
	if j.Ticker == "" {
		return fmt.Errorf("refresh_fundamentals: empty ticker")
	}
	return nil
}

// newRegistry builds the family's type registry: every job type this
// worker can decode and run.
func newRegistry() *registry.Registry[WorkerContext] {
	r := registry.New[WorkerContext]()
	registry.Register[WorkerContext](r, "fetch_quote", &FetchQuoteJob{})
	registry.Register[WorkerContext](r, "refresh_fundamentals", &RefreshFundamentalsJob{})
	return r
}
