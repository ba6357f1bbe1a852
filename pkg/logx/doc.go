// Package logx configures threadsched's structured logging.
//
// Logger wraps zerolog. Console output is human readable with a short
// timestamp and caller; file output stays JSON.
package logx
