// Package listener owns the downstream TCP socket rovers dial into. It
// accepts connections, mints a session id for each, and hands the
// connection to a new session.Engine to drive to completion.
package listener
