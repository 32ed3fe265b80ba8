package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vicentereig/whatsapp-media-dl/internal/client"
	"github.com/vicentereig/whatsapp-media-dl/internal/logging"
	"github.com/vicentereig/whatsapp-media-dl/internal/output"
	"github.com/vicentereig/whatsapp-media-dl/internal/resolve"
	"github.com/vicentereig/whatsapp-media-dl/internal/store"
)

type App struct {
	client   WAClient
	store    MessageStore
	resolver *resolve.Resolver
	storeDir string
	log      zerolog.Logger

	// human facing output; stdout is reserved for the JSON envelope
	stderr  io.Writer
	stdin   io.Reader
	isTTY   bool
	now     func() time.Time
	batchID func() string
}

func NewApp(storeDir string, log zerolog.Logger) (*App, error) {
	cli, err := client.NewWAClient(storeDir, log)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(storeDir, "messages.db")
	st, err := store.NewMessageStore(dbPath)
	if err != nil {
		return nil, err
	}

	app := NewAppWithDeps(cli, st, storeDir)
	app.log = log
	app.isTTY = logging.IsTerminal(os.Stderr)
	return app, nil
}

// NewAppWithDeps wires an App from already constructed dependencies.
func NewAppWithDeps(cli WAClient, st MessageStore, storeDir string) *App {
	return &App{
		client:   cli,
		store:    st,
		resolver: resolve.New(st),
		storeDir: storeDir,
		log:      zerolog.Nop(),
		stderr:   os.Stderr,
		stdin:    os.Stdin,
		now:      time.Now,
		batchID:  uuid.NewString,
	}
}

func (a *App) Close() {
	if a.client != nil {
		a.client.Disconnect()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// Version renders the build version. It needs neither store, so the version
// command works before the first auth.
func Version(version string) string {
	return output.Success(map[string]string{"version": resolveVersion(version, gitDescribe)})
}

func (a *App) Auth(ctx context.Context) (string, error) {
	if a.client.IsAuthenticated() {
		return output.Success(map[string]interface{}{
			"authenticated": true,
			"message":       "Already authenticated",
		}), nil
	}

	if err := a.client.Authenticate(ctx); err != nil {
		return output.Error(err), err
	}

	return output.Success(map[string]interface{}{
		"authenticated": true,
		"message":       "Successfully authenticated",
	}), nil
}

func (a *App) ListMessages(chatJID *string, mediaOnly bool, limit, page int) (string, error) {
	messages, err := a.store.ListMessages(store.ListMessagesParams{
		ChatJID:   chatJID,
		MediaOnly: mediaOnly,
		Limit:     limit,
		Page:      page,
	})
	if err != nil {
		return output.Error(err), err
	}

	return output.Success(messages), nil
}

func (a *App) ListChats(query *string, limit, page int) (string, error) {
	chats, err := a.store.ListChats(store.ListChatsParams{
		Query: query,
		Limit: limit,
		Page:  page,
	})
	if err != nil {
		return output.Error(err), err
	}

	return output.Success(chats), nil
}

// ListBatches shows the download ledger, newest first.
func (a *App) ListBatches(limit int) (string, error) {
	batches, err := a.store.ListBatches(limit)
	if err != nil {
		return output.Error(err), err
	}
	return output.Success(batches), nil
}

// resolveVersion prefers an explicit build version and falls back to git.
func resolveVersion(version string, describeFn func() (string, error)) string {
	if version != "" && version != "dev" {
		return version
	}
	if describeFn != nil {
		if described, err := describeFn(); err == nil && strings.TrimSpace(described) != "" {
			return strings.TrimSpace(described)
		}
	}
	return "dev"
}

func gitDescribe() (string, error) {
	out, err := exec.Command("git", "describe", "--tags", "--always", "--dirty").Output()
	if err != nil {
		return "", fmt.Errorf("git describe: %w", err)
	}
	return string(out), nil
}
