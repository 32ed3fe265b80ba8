// Package batch downloads a window of a chat's media history with bounded
// parallelism. Every windowed item ends in exactly one Outcome; one failed
// transfer never stops its siblings.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

const DefaultConcurrency = 4

var (
	ErrInvalidOptions     = errors.New("invalid batch options")
	ErrInvalidConcurrency = fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidOptions)
	ErrTransferPanic      = errors.New("transfer panic")
)

var validate = validator.New()

// Options are the caller supplied knobs of one batch.
type Options struct {
	Concurrency int           `validate:"min=1"`
	Skip        int           `validate:"min=0"`
	Limit       *int          `validate:"omitempty,min=1"`
	Timeout     time.Duration `validate:"min=0"`
}

func (o Options) Validate() error {
	if o.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options) Window() types.DownloadWindow {
	return types.DownloadWindow{Skip: o.Skip, Limit: o.Limit}
}
