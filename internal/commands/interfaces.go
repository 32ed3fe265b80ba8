// Package commands provides the CLI command implementations.
//
// # Dependency Injection
//
// The interfaces below define the dependencies of App, enabling testability
// through mock injection. Types are shared via internal/types to avoid
// circular dependencies.
//
// Usage:
//   - Production: Use NewApp() which creates concrete implementations
//   - Testing: Use NewAppWithDeps() to inject mocks
package commands

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/vicentereig/whatsapp-media-dl/internal/client"
	"github.com/vicentereig/whatsapp-media-dl/internal/store"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// MessageStore defines the interface for message persistence.
// The concrete implementation is store.MessageStore.
type MessageStore interface {
	ListMessages(params store.ListMessagesParams) ([]store.Message, error)
	ListChats(params store.ListChatsParams) ([]store.Chat, error)
	GetChat(jid string) (store.Chat, error)
	FindChatsByName(name string) ([]store.Chat, error)
	StoreChat(jid, name string, lastMessageTime time.Time) error
	StoreMessage(m store.MessageRecord) error
	WalkMessages(ctx context.Context, params store.WalkParams, fn func(store.HistoryRecord) error) error
	MarkMediaDownloaded(id, chatJID, localPath string, downloadedAt time.Time) error
	SaveBatch(b store.BatchRecord) error
	ListBatches(limit int) ([]store.BatchRecord, error)
	Close() error
}

// WAClient defines the interface for WhatsApp client operations.
// The concrete implementation is client.WAClient.
type WAClient interface {
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect()
	ResolveChatName(ctx context.Context, jid string, msg *events.Message) string
	DownloadMedia(ctx context.Context, req types.MediaDownloadRequest, targetPath string, onProgress types.ProgressFunc) (int64, error)
	StartSync(ctx context.Context, eventHandler func(interface{})) error
	ParseHistorySync(evt *events.HistorySync) []client.SyncedChat
}

var (
	_ MessageStore = (*store.MessageStore)(nil)
	_ WAClient     = (*client.WAClient)(nil)
)
