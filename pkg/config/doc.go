// Package config holds the ServerConfig snapshot and Station list that drive
// station selection, and the Store that loads, validates, hot-reloads and
// fans out change notifications for them.
package config
