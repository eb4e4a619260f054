// Package scraper fans a paginated search out over a fixed set of
// concurrent workers, each routing its requests through its own relay.
//
// The upstream reports how many pages a query has only in its responses,
// so a run starts with a single request for the first page. The remaining
// pages are then split into contiguous ranges, one per worker:
//
//	pool := proxypool.New(proxies, logger)
//	sink := results.NewSink()
//	d := scraper.NewDispatcher(client, pool, sink, gate, scraper.DefaultConfig(), logger)
//	if err := d.Start(ctx, "keyword"); err != nil {
//	    // quota already exhausted, bad input or first page unreachable
//	}
//	<-d.Done()
//
// A worker:
//   - Checks out one relay and holds it for the whole run
//   - Retries a failing page until it succeeds or the run is cancelled
//   - Swaps its relay after every FailLimit consecutive failures
//   - Pauses for PaceInterval after every request
//   - Returns its relay to the pool on exit
//
// A quota answer (429) is not counted as a relay failure. It is reported
// to the shared Gate, which holds back every worker until the quota
// cooldown has passed.
//
// Coordinator implements the interrupt handling around a run: cancel all
// workers once, then wait a bounded time for them to exit.
package scraper
