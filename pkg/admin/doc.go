// Package admin implements the HTTP collaborator described in §4.7: a
// small gorilla/mux router, guarded by HTTP basic auth against the
// configured admin credentials, that exposes the station list, live
// session table, and a forced reload trigger.
package admin
