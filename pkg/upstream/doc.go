// Package upstream dials an NTRIP caster over raw TCP, issues the NTRIP GET
// request, and hands back the connection for opaque byte forwarding. It does
// not parse the caster's response: the response header block and the RTCM
// stream that follows are forwarded to the rover verbatim.
package upstream
