/*
Package routing implements the blue/green routing decision.

The decision for a single request runs through four steps:

  - eligibility: only top-level browser navigations to the canonical
    production host on a production instance are routed at all,
  - configuration: the blue/green snapshot is fetched fresh from the
    external store on every request and validated,
  - affinity: a valid session cookie binds the request to the variant
    it was routed to before,
  - split: without affinity, a uniform random draw against the green
    traffic percentage picks the variant.

A request that this router already forwarded once carries a marker
header and is terminated locally without running affinity or split
logic again.

All functions in this package are pure over their inputs; the only
state is the locked random source of the Selector.
*/
package routing
