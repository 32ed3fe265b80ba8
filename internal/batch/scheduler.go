package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vicentereig/whatsapp-media-dl/internal/progress"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// Config wires a Scheduler.
type Config struct {
	Concurrency int
	Dir         string
	Timeout     time.Duration
	Transport   Transport
	Sink        progress.Sink
	Logger      zerolog.Logger
	// OnOutcome is called from the task goroutine as each task finishes.
	OnOutcome func(Outcome)
	// ObserveGate is passed to the admission gate; see NewGate.
	ObserveGate func(inFlight int)
}

// Scheduler runs one task per reference, at most Concurrency at a time, and
// returns only after every task has reached a terminal state.
type Scheduler struct {
	cfg  Config
	gate *Gate
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	gate, err := NewGate(cfg.Concurrency, cfg.ObserveGate)
	if err != nil {
		return nil, err
	}
	if cfg.Sink == nil {
		cfg.Sink = progress.Discard
	}
	return &Scheduler{cfg: cfg, gate: gate}, nil
}

// Run downloads refs and returns a report holding exactly len(refs)
// outcomes. The error is ctx.Err() when the interrupt cut at least one
// transfer short.
func (s *Scheduler) Run(ctx context.Context, refs []types.MediaReference, start int) (*Report, error) {
	report := NewReport(refs, start)
	if len(refs) == 0 {
		return report, nil
	}

	var wg sync.WaitGroup
	for _, ref := range refs {
		task := NewTask(ref, s.cfg.Dir, s.cfg.Transport, s.cfg.Sink, s.cfg.Timeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := task.Run(ctx, s.gate)
			report.Record(out)
			s.log(out)
			if s.cfg.OnOutcome != nil {
				s.cfg.OnOutcome(out)
			}
		}()
	}
	wg.Wait()

	// An interrupt that lands after the last transfer finished leaves a
	// complete batch.
	err := ctx.Err()
	if err == nil {
		return report, nil
	}
	cut := lo.SomeBy(report.Outcomes(), func(o Outcome) bool { return errors.Is(o.Err, err) })
	if !cut {
		return report, nil
	}
	return report, err
}

func (s *Scheduler) log(o Outcome) {
	if !o.Admitted {
		s.cfg.Logger.Debug().
			Int("position", o.Reference.Position).
			Str("message_id", o.Reference.MessageID).
			Err(o.Err).
			Msg("transfer not started")
		return
	}
	if o.Status == StatusFailed {
		s.cfg.Logger.Warn().
			Int("position", o.Reference.Position).
			Str("message_id", o.Reference.MessageID).
			Err(o.Err).
			Msg("transfer failed")
		return
	}
	s.cfg.Logger.Debug().
		Int("position", o.Reference.Position).
		Str("path", o.LocalPath).
		Int64("bytes", o.BytesTransferred).
		Msg("transfer finished")
}
