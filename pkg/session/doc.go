/*
Package session implements the per-rover NTRIP state machine: the core of
the proxy. An Engine owns one downstream rover socket, string-matches its
request line the way the source this was distilled from does (no full HTTP
parsing), parses any GPGGA bodies that follow on the same connection,
selects the nearest station via pkg/geo, and dials/switches the bound
upstream via pkg/upstream, all serialized through a single per-session
event loop so a switch is never interrupted by a concurrent one.

States: AwaitingRequest -> {ServedSourcetable | Subscribed | Rejected}.
While Subscribed, a parallel sub-state tracks the upstream binding:
Unbound <-> Bound(mount).
*/
package session
