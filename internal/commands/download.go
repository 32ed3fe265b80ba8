package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gookit/color"

	"github.com/vicentereig/whatsapp-media-dl/internal/batch"
	"github.com/vicentereig/whatsapp-media-dl/internal/output"
	"github.com/vicentereig/whatsapp-media-dl/internal/progress"
	"github.com/vicentereig/whatsapp-media-dl/internal/resolve"
	"github.com/vicentereig/whatsapp-media-dl/internal/store"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

const (
	msgNoMedia     = "No media messages found in the specified chat/topic."
	msgWindowEmpty = "No media messages found after applying skip/limit parameters."
	progressBuffer = 256
)

// DownloadRequest describes one batch download.
type DownloadRequest struct {
	Identifier string
	Kind       resolve.Kind
	// Topic narrows the batch to the reply thread rooted at this message ID.
	Topic   *string
	Options batch.Options
	// Root is the directory under which downloads_<identifier> is created.
	Root    string
	Confirm bool
}

// DownloadBatch resolves the chat, walks its media history oldest-first,
// applies the skip/limit window and downloads what remains with bounded
// parallelism. Individual failed items do not make the call fail.
func (a *App) DownloadBatch(ctx context.Context, req DownloadRequest) (string, error) {
	fail := func(err error) (string, error) { return output.Error(err), err }

	if err := req.Options.Validate(); err != nil {
		return fail(err)
	}
	if !a.client.IsAuthenticated() {
		return fail(ErrNotAuthenticated)
	}

	chat, err := a.resolver.Resolve(req.Identifier, req.Kind)
	if err != nil {
		return fail(err)
	}

	refs, err := a.mediaHistory(ctx, chat.JID, req.Topic)
	if err != nil {
		return fail(err)
	}
	if len(refs) == 0 {
		fmt.Fprintln(a.stderr, msgNoMedia)
		return output.Success(emptyView(chat.JID)), nil
	}

	window, start := batch.Window(refs, req.Options.Window())
	if len(window) == 0 {
		fmt.Fprintln(a.stderr, msgWindowEmpty)
		return output.Success(emptyView(chat.JID)), nil
	}

	fmt.Fprintf(a.stderr, "Found %d messages with media, downloading %d messages (from %d to %d) with concurrency=%d...\n",
		len(refs), len(window), start+1, start+len(window), req.Options.Concurrency)
	preflight := batch.NewReport(window, start)
	fmt.Fprintln(a.stderr, preflight.PreflightLine())

	if req.Confirm {
		ok, err := a.confirm("Proceed with download? [y/N]: ")
		if err != nil {
			return fail(err)
		}
		if !ok {
			return fail(ErrAborted)
		}
	}

	if err := a.client.Connect(ctx); err != nil {
		return fail(fmt.Errorf("failed to connect: %w", err))
	}

	dir := batch.OutputDir(req.Root, req.Identifier)
	ledger := store.BatchRecord{
		ID:        a.batchID(),
		ChatJID:   chat.JID,
		Dir:       dir,
		Requested: len(window),
		StartedAt: a.now(),
	}
	if req.Topic != nil {
		ledger.Topic = *req.Topic
	}
	a.saveLedger(ledger)

	hub := progress.NewHub(a.renderer(len(window)), progressBuffer)
	scheduler, err := batch.NewScheduler(batch.Config{
		Concurrency: req.Options.Concurrency,
		Dir:         dir,
		Timeout:     req.Options.Timeout,
		Transport:   batch.TransportFunc(a.fetch),
		Sink:        hub,
		Logger:      a.log.With().Str("batch", ledger.ID).Logger(),
		OnOutcome:   a.recordOutcome,
	})
	if err != nil {
		hub.Close()
		return fail(err)
	}

	report, runErr := scheduler.Run(ctx, window, start)
	hub.Close()
	report.ID = ledger.ID
	report.ChatJID = chat.JID

	report.WriteTable(a.stderr)
	summary := report.Summary()
	if report.Failed() > 0 {
		summary = color.New(color.FgYellow).Render(summary)
	}
	fmt.Fprintln(a.stderr, summary)

	finished := a.now()
	ledger.Succeeded = report.Succeeded()
	ledger.Failed = report.Failed()
	ledger.Bytes = report.BytesTransferred()
	ledger.FinishedAt = &finished
	a.saveLedger(ledger)

	if runErr != nil {
		return output.Failure(runErr, report.View()), runErr
	}
	return output.Success(report.View()), nil
}

// mediaHistory walks the chat oldest-first and keeps the messages carrying
// media, numbering them by their rank in that sequence.
func (a *App) mediaHistory(ctx context.Context, chatJID string, topic *string) ([]types.MediaReference, error) {
	var refs []types.MediaReference
	err := a.store.WalkMessages(ctx, store.WalkParams{ChatJID: chatJID, Topic: topic}, func(rec store.HistoryRecord) error {
		if rec.Media == nil {
			return nil
		}
		refs = append(refs, types.MediaReference{
			Position:  len(refs) + 1,
			MessageID: rec.ID,
			ChatJID:   rec.ChatJID,
			MimeType:  rec.Media.MimeType,
			Payload:   rec.Media.Payload(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrHistoryFetch, err)
	}
	return refs, nil
}

func (a *App) fetch(ctx context.Context, ref types.MediaReference, dest string, onProgress types.ProgressFunc) (int64, error) {
	return a.client.DownloadMedia(ctx, ref.Payload.Request(), dest, onProgress)
}

func (a *App) recordOutcome(o batch.Outcome) {
	if o.Status != batch.StatusSucceeded || o.LocalPath == "" {
		return
	}
	if err := a.store.MarkMediaDownloaded(o.Reference.MessageID, o.Reference.ChatJID, o.LocalPath, a.now()); err != nil {
		a.log.Warn().Err(err).Str("message_id", o.Reference.MessageID).Msg("failed to record download")
	}
}

func (a *App) saveLedger(rec store.BatchRecord) {
	if err := a.store.SaveBatch(rec); err != nil {
		a.log.Warn().Err(err).Str("batch", rec.ID).Msg("failed to save batch ledger")
	}
}

func (a *App) renderer(total int) progress.Renderer {
	if a.isTTY {
		return progress.NewTeaRenderer(a.stderr, total)
	}
	return progress.NewLineRenderer(a.stderr, total)
}

func (a *App) confirm(prompt string) (bool, error) {
	fmt.Fprint(a.stderr, prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func emptyView(chatJID string) batch.View {
	return batch.View{ChatJID: chatJID, Items: []batch.ItemView{}}
}
