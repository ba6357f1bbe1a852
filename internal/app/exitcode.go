package app

import (
	"errors"

	"threadsched/internal/config"
	"threadsched/internal/scheduler"
	"threadsched/internal/transport"
)

var (
	// ErrUsage marks bad command-line arguments.
	ErrUsage = errors.New("usage error")
	// ErrConnect wraps any failure to reach the messaging platform at startup.
	ErrConnect = errors.New("platform connection failed")
	// ErrStorage wraps a pin ledger that could not be opened.
	ErrStorage = errors.New("storage unavailable")
)

// Process exit codes. 1 covers anything not listed.
const (
	ExitOK               = 0
	ExitUnexpected       = 1
	ExitUsage            = 2
	ExitTokenAndFile     = 3
	ExitNoToken          = 4
	ExitInvalidToken     = 5
	ExitConnect          = 6
	ExitTokenFileMissing = 7
	ExitTokenFileEmpty   = 8
	ExitConfigMissing    = 9
	ExitConfigFormat     = 10
	ExitConfigValue      = 11
	ExitChannelNotFound  = 12
	ExitNotMessageChan   = 13
	ExitAllHalted        = 14
	ExitStorage          = 15
)

// exitCodes is checked in order; the first match wins. ErrUnauthorized comes
// before ErrConnect because connect errors wrap it.
var exitCodes = []struct {
	err  error
	code int
}{
	{ErrUsage, ExitUsage},
	{config.ErrTokenAndTokenFile, ExitTokenAndFile},
	{config.ErrNoToken, ExitNoToken},
	{transport.ErrUnauthorized, ExitInvalidToken},
	{ErrConnect, ExitConnect},
	{config.ErrTokenFileNotFound, ExitTokenFileMissing},
	{config.ErrTokenFileEmpty, ExitTokenFileEmpty},
	{config.ErrConfigNotFound, ExitConfigMissing},
	{config.ErrInvalidFormat, ExitConfigFormat},
	{config.ErrInvalidValue, ExitConfigValue},
	{scheduler.ErrChannelNotFound, ExitChannelNotFound},
	{scheduler.ErrNotMessageChannel, ExitNotMessageChan},
	{scheduler.ErrAllHalted, ExitAllHalted},
	{ErrStorage, ExitStorage},
}

// ExitCode maps an error returned by the app to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ExitUnexpected
}
