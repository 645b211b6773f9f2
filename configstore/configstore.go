/*
Package configstore provides clients for the external store holding
the blue/green routing configuration.

Every client implements the routing.DataClient contract: Get returns
the raw JSON value of a key, a found flag, and an error. A missing
entry is found=false and never an error, so callers can distinguish
"not configured" from "store unreachable". None of the clients cache
or retry, every routed request performs a fresh lookup.
*/
package configstore
