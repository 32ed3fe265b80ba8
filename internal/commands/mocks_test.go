package commands

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/vicentereig/whatsapp-media-dl/internal/client"
	"github.com/vicentereig/whatsapp-media-dl/internal/store"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// MockMessageStore implements MessageStore for testing.
type MockMessageStore struct {
	ListMessagesFunc        func(params store.ListMessagesParams) ([]store.Message, error)
	ListChatsFunc           func(params store.ListChatsParams) ([]store.Chat, error)
	GetChatFunc             func(jid string) (store.Chat, error)
	FindChatsByNameFunc     func(name string) ([]store.Chat, error)
	StoreChatFunc           func(jid, name string, lastMessageTime time.Time) error
	StoreMessageFunc        func(m store.MessageRecord) error
	WalkMessagesFunc        func(ctx context.Context, params store.WalkParams, fn func(store.HistoryRecord) error) error
	MarkMediaDownloadedFunc func(id, chatJID, localPath string, downloadedAt time.Time) error
	SaveBatchFunc           func(b store.BatchRecord) error
	ListBatchesFunc         func(limit int) ([]store.BatchRecord, error)
	CloseFunc               func() error
}

func (m *MockMessageStore) ListMessages(params store.ListMessagesParams) ([]store.Message, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(params)
	}
	return nil, nil
}

func (m *MockMessageStore) ListChats(params store.ListChatsParams) ([]store.Chat, error) {
	if m.ListChatsFunc != nil {
		return m.ListChatsFunc(params)
	}
	return nil, nil
}

func (m *MockMessageStore) GetChat(jid string) (store.Chat, error) {
	if m.GetChatFunc != nil {
		return m.GetChatFunc(jid)
	}
	return store.Chat{}, sql.ErrNoRows
}

func (m *MockMessageStore) FindChatsByName(name string) ([]store.Chat, error) {
	if m.FindChatsByNameFunc != nil {
		return m.FindChatsByNameFunc(name)
	}
	return nil, nil
}

func (m *MockMessageStore) StoreChat(jid, name string, lastMessageTime time.Time) error {
	if m.StoreChatFunc != nil {
		return m.StoreChatFunc(jid, name, lastMessageTime)
	}
	return nil
}

func (m *MockMessageStore) StoreMessage(rec store.MessageRecord) error {
	if m.StoreMessageFunc != nil {
		return m.StoreMessageFunc(rec)
	}
	return nil
}

func (m *MockMessageStore) WalkMessages(ctx context.Context, params store.WalkParams, fn func(store.HistoryRecord) error) error {
	if m.WalkMessagesFunc != nil {
		return m.WalkMessagesFunc(ctx, params, fn)
	}
	return nil
}

func (m *MockMessageStore) MarkMediaDownloaded(id, chatJID, localPath string, downloadedAt time.Time) error {
	if m.MarkMediaDownloadedFunc != nil {
		return m.MarkMediaDownloadedFunc(id, chatJID, localPath, downloadedAt)
	}
	return nil
}

func (m *MockMessageStore) SaveBatch(b store.BatchRecord) error {
	if m.SaveBatchFunc != nil {
		return m.SaveBatchFunc(b)
	}
	return nil
}

func (m *MockMessageStore) ListBatches(limit int) ([]store.BatchRecord, error) {
	if m.ListBatchesFunc != nil {
		return m.ListBatchesFunc(limit)
	}
	return nil, nil
}

func (m *MockMessageStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockWAClient implements WAClient for testing.
type MockWAClient struct {
	IsAuthenticatedFunc  func() bool
	AuthenticateFunc     func(ctx context.Context) error
	ConnectFunc          func(ctx context.Context) error
	DisconnectFunc       func()
	ResolveChatNameFunc  func(ctx context.Context, jid string, msg *events.Message) string
	DownloadMediaFunc    func(ctx context.Context, req types.MediaDownloadRequest, targetPath string, onProgress types.ProgressFunc) (int64, error)
	StartSyncFunc        func(ctx context.Context, eventHandler func(interface{})) error
	ParseHistorySyncFunc func(evt *events.HistorySync) []client.SyncedChat
}

func (m *MockWAClient) IsAuthenticated() bool {
	if m.IsAuthenticatedFunc != nil {
		return m.IsAuthenticatedFunc()
	}
	return true
}

func (m *MockWAClient) Authenticate(ctx context.Context) error {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return nil
}

func (m *MockWAClient) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockWAClient) Disconnect() {
	if m.DisconnectFunc != nil {
		m.DisconnectFunc()
	}
}

func (m *MockWAClient) ResolveChatName(ctx context.Context, jid string, msg *events.Message) string {
	if m.ResolveChatNameFunc != nil {
		return m.ResolveChatNameFunc(ctx, jid, msg)
	}
	return jid
}

func (m *MockWAClient) DownloadMedia(ctx context.Context, req types.MediaDownloadRequest, targetPath string, onProgress types.ProgressFunc) (int64, error) {
	if m.DownloadMediaFunc != nil {
		return m.DownloadMediaFunc(ctx, req, targetPath, onProgress)
	}
	return 0, nil
}

func (m *MockWAClient) StartSync(ctx context.Context, eventHandler func(interface{})) error {
	if m.StartSyncFunc != nil {
		return m.StartSyncFunc(ctx, eventHandler)
	}
	return nil
}

func (m *MockWAClient) ParseHistorySync(evt *events.HistorySync) []client.SyncedChat {
	if m.ParseHistorySyncFunc != nil {
		return m.ParseHistorySyncFunc(evt)
	}
	return nil
}
