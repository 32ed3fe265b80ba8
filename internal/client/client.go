package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/vicentereig/whatsapp-media-dl/internal/logging"
)

var (
	ErrNotInitialized = errors.New("whatsapp client is not initialized")
	ErrAuthFailed     = errors.New("authentication failed")
)

type WAClient struct {
	client   *whatsmeow.Client
	storeDir string
	log      zerolog.Logger
	out      io.Writer

	contactLookup   func(ctx context.Context, user types.JID) (types.ContactInfo, error)
	parseWebMessage func(chat types.JID, msg *waWeb.WebMessageInfo) (*events.Message, error)

	// names learned from group and newsletter events, keyed by chat JID
	names sync.Map
}

func NewWAClient(storeDir string, log zerolog.Logger) (*WAClient, error) {
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(storeDir, "whatsapp.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, logging.WhatsApp(log, "Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get device: %w", err)
		}
		deviceStore = container.NewDevice()
	}

	cli := whatsmeow.NewClient(deviceStore, logging.WhatsApp(log, "Client"))

	w := &WAClient{
		client:          cli,
		storeDir:        storeDir,
		log:             log,
		out:             os.Stderr,
		contactLookup:   contactLookupFunc(cli),
		parseWebMessage: cli.ParseWebMessage,
	}
	cli.AddEventHandler(w.learnNames)
	return w, nil
}

func (w *WAClient) IsAuthenticated() bool {
	return w.client != nil && w.client.Store != nil && w.client.Store.ID != nil
}

// Authenticate pairs this device by QR code. The code is drawn on stderr so
// stdout stays machine readable.
func (w *WAClient) Authenticate(ctx context.Context) error {
	if w.client == nil {
		return ErrNotInitialized
	}
	if w.IsAuthenticated() {
		return nil
	}

	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			fmt.Fprintln(w.out, "\nScan this QR code with your WhatsApp app:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.M, w.out)
		case "success":
			fmt.Fprintln(w.out, "\nSuccessfully authenticated!")
			return nil
		case "timeout":
			return fmt.Errorf("%w: QR code expired", ErrAuthFailed)
		}
	}

	return ErrAuthFailed
}

func (w *WAClient) Connect(ctx context.Context) error {
	if w.client == nil {
		return ErrNotInitialized
	}
	if !w.IsAuthenticated() {
		return w.Authenticate(ctx)
	}
	if w.client.IsConnected() {
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return nil
}

func (w *WAClient) Disconnect() {
	if w.client != nil {
		w.client.Disconnect()
	}
}

// StartSync registers eventHandler and connects.
func (w *WAClient) StartSync(ctx context.Context, eventHandler func(interface{})) error {
	if w.client == nil {
		return ErrNotInitialized
	}
	w.client.AddEventHandler(eventHandler)
	return w.Connect(ctx)
}

func contactLookupFunc(cli *whatsmeow.Client) func(ctx context.Context, user types.JID) (types.ContactInfo, error) {
	if cli == nil || cli.Store == nil || cli.Store.Contacts == nil {
		return nil
	}
	return func(ctx context.Context, user types.JID) (types.ContactInfo, error) {
		return cli.Store.Contacts.GetContact(ctx, user)
	}
}
