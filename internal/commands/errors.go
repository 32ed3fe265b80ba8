package commands

import (
	"context"
	"errors"

	"github.com/vicentereig/whatsapp-media-dl/internal/batch"
	"github.com/vicentereig/whatsapp-media-dl/internal/config"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated: run the auth command first")
	ErrHistoryFetch     = errors.New("failed to read chat history")
	ErrAborted          = errors.New("download aborted")
	ErrUsage            = errors.New("invalid usage")
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitInterrupted = 130
)

// ExitCode maps an error returned by an App method onto a process exit code.
// Failed items inside a completed batch are not errors and exit with ExitOK.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, batch.ErrInvalidOptions),
		errors.Is(err, config.ErrConfig),
		errors.Is(err, ErrUsage):
		return ExitConfig
	default:
		return ExitFailure
	}
}
