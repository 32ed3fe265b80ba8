package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vicentereig/whatsapp-media-dl/internal/batch"
	"github.com/vicentereig/whatsapp-media-dl/internal/commands"
	"github.com/vicentereig/whatsapp-media-dl/internal/config"
	"github.com/vicentereig/whatsapp-media-dl/internal/logging"
	"github.com/vicentereig/whatsapp-media-dl/internal/output"
	"github.com/vicentereig/whatsapp-media-dl/internal/resolve"
)

var (
	// version is overridden at build time via -ldflags "-X main.version=X.Y.Z"
	version = "dev"
)

const (
	authTimeout    = 5 * time.Minute
	msgInterrupted = "Download interrupted by user."
)

const examples = `  whatsapp-media-dl auth
  whatsapp-media-dl sync                                   # keep running, Ctrl+C to stop
  whatsapp-media-dl chats list --query "family"
  whatsapp-media-dl download --id "Family" --group --concurrency 8
  whatsapp-media-dl download --id 120363000000000001 --channel --skip 20 --limit 40
  whatsapp-media-dl download --id 120363000000000001@g.us --group --topic 3EB0C0FFEE`

// application is the part of commands.App the CLI drives.
type application interface {
	Auth(ctx context.Context) (string, error)
	Sync(ctx context.Context) (string, error)
	ListMessages(chatJID *string, mediaOnly bool, limit, page int) (string, error)
	ListChats(query *string, limit, page int) (string, error)
	ListBatches(limit int) (string, error)
	DownloadBatch(ctx context.Context, req commands.DownloadRequest) (string, error)
	Close()
}

type openFunc func(storeDir string, log zerolog.Logger) (application, error)

func openApp(storeDir string, log zerolog.Logger) (application, error) {
	absStoreDir, err := filepath.Abs(storeDir)
	if err != nil {
		return nil, err
	}
	return commands.NewApp(absStoreDir, log)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(output.Error(err))
		return commands.ExitCode(err)
	}

	return newCLI(cfg, openApp, os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
}

type cli struct {
	cfg    config.Config
	open   openFunc
	stdout io.Writer
	stderr io.Writer

	storeDir string
	logLevel string

	// ran is set once a command body starts; errors before that point are
	// flag or argument errors.
	ran bool
}

func newCLI(cfg config.Config, open openFunc, stdout, stderr io.Writer) *cli {
	return &cli{cfg: cfg, open: open, stdout: stdout, stderr: stderr}
}

func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil && !c.ran {
		err = fmt.Errorf("%w: %v", commands.ErrUsage, err)
		fmt.Fprintln(c.stdout, output.Error(err))
		fmt.Fprintln(c.stderr, "Run 'whatsapp-media-dl --help' for usage.")
	}
	return commands.ExitCode(err)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whatsapp-media-dl",
		Short:         "Bulk download media from WhatsApp groups and channels",
		Example:       examples,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stderr)
	root.SetErr(c.stderr)
	root.PersistentFlags().StringVar(&c.storeDir, "store", c.cfg.StoreDir, "storage directory")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", c.cfg.LogLevel, "log level (trace, debug, info, warn, error)")

	chats := &cobra.Command{Use: "chats", Short: "Inspect synced chats"}
	chats.AddCommand(c.chatsListCmd())

	messages := &cobra.Command{Use: "messages", Short: "Inspect synced messages"}
	messages.AddCommand(c.messagesListCmd())

	batches := &cobra.Command{Use: "batches", Short: "Inspect past downloads"}
	batches.AddCommand(c.batchesListCmd())

	root.AddCommand(
		c.authCmd(),
		c.syncCmd(),
		chats,
		messages,
		batches,
		c.downloadCmd(),
		c.versionCmd(),
	)
	return root
}

// action opens the stores, runs fn and prints its JSON result on stdout.
func (c *cli) action(fn func(ctx context.Context, app application) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c.ran = true

		log, err := logging.New(c.stderr, c.logLevel)
		if err != nil {
			err = fmt.Errorf("%w: %v", config.ErrConfig, err)
			fmt.Fprintln(c.stdout, output.Error(err))
			return err
		}

		app, err := c.open(c.storeDir, log)
		if err != nil {
			err = fmt.Errorf("failed to initialize: %w", err)
			fmt.Fprintln(c.stdout, output.Error(err))
			return err
		}
		defer app.Close()

		result, err := fn(cmd.Context(), app)
		fmt.Fprintln(c.stdout, result)
		return err
	}
}

func (c *cli) authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with WhatsApp (scan QR code)",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, app application) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, authTimeout)
			defer cancel()
			return app.Auth(ctx)
		}),
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync messages continuously (run until Ctrl+C)",
		Args:  cobra.NoArgs,
		RunE: c.action(func(ctx context.Context, app application) (string, error) {
			return app.Sync(ctx)
		}),
	}
}

func (c *cli) chatsListCmd() *cobra.Command {
	var (
		query       string
		limit, page int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		Args:  cobra.NoArgs,
		RunE: c.action(func(_ context.Context, app application) (string, error) {
			return app.ListChats(optional(query), limit, page)
		}),
	}
	cmd.Flags().StringVar(&query, "query", "", "match chat name or JID")
	cmd.Flags().IntVar(&limit, "limit", 20, "limit")
	cmd.Flags().IntVar(&page, "page", 0, "page")
	return cmd
}

func (c *cli) messagesListCmd() *cobra.Command {
	var (
		chat        string
		mediaOnly   bool
		limit, page int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages, newest first",
		Args:  cobra.NoArgs,
		RunE: c.action(func(_ context.Context, app application) (string, error) {
			return app.ListMessages(optional(chat), mediaOnly, limit, page)
		}),
	}
	cmd.Flags().StringVar(&chat, "chat", "", "chat JID")
	cmd.Flags().BoolVar(&mediaOnly, "media-only", false, "only messages with media")
	cmd.Flags().IntVar(&limit, "limit", 20, "limit")
	cmd.Flags().IntVar(&page, "page", 0, "page")
	return cmd
}

func (c *cli) batchesListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded download batches, newest first",
		Args:  cobra.NoArgs,
		RunE: c.action(func(_ context.Context, app application) (string, error) {
			return app.ListBatches(limit)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "limit")
	return cmd
}

func (c *cli) downloadCmd() *cobra.Command {
	var (
		id, topic, dir    string
		group, channel    bool
		concurrency, skip int
		limit             int
		timeout           time.Duration
		confirm           bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download every media attachment of a group or channel",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = c.action(func(ctx context.Context, app application) (string, error) {
		req := commands.DownloadRequest{
			Identifier: id,
			Kind:       resolve.KindGroup,
			Topic:      optional(topic),
			Root:       dir,
			Confirm:    confirm,
			Options: batch.Options{
				Concurrency: concurrency,
				Skip:        skip,
				Timeout:     timeout,
			},
		}
		if channel {
			req.Kind = resolve.KindChannel
		}
		if cmd.Flags().Changed("limit") {
			req.Options.Limit = &limit
		}

		result, err := app.DownloadBatch(ctx, req)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.stderr, msgInterrupted)
		}
		return result, err
	})

	cmd.Flags().StringVar(&id, "id", "", "group or channel: JID, numeric ID or exact name")
	cmd.Flags().BoolVar(&group, "group", false, "the identifier names a group")
	cmd.Flags().BoolVar(&channel, "channel", false, "the identifier names a channel")
	cmd.Flags().StringVar(&topic, "topic", "", "only the reply thread rooted at this message ID")
	cmd.Flags().IntVar(&concurrency, "concurrency", c.cfg.Concurrency, "maximum parallel downloads")
	cmd.Flags().IntVar(&skip, "skip", 0, "media messages to skip from the oldest")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum media messages to download (default all)")
	cmd.Flags().StringVar(&dir, "dir", c.cfg.DownloadRoot, "directory to create downloads_<id> in")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-item timeout, 0 for none")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask before downloading")

	_ = cmd.MarkFlagRequired("id")
	cmd.MarkFlagsMutuallyExclusive("group", "channel")
	cmd.MarkFlagsOneRequired("group", "channel")
	return cmd
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.ran = true
			fmt.Fprintln(c.stdout, commands.Version(version))
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
