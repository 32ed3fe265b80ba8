package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

type Message struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat_jid"`
	ChatName  string    `json:"chat_name,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsFromMe  bool      `json:"is_from_me"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	LocalPath string    `json:"local_path,omitempty"`
}

type Chat struct {
	JID             string    `json:"jid"`
	Name            string    `json:"name"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// MessageRecord is one message as captured from a live or history-sync event.
type MessageRecord struct {
	ID        string
	ChatJID   string
	Sender    string
	Content   string
	Timestamp time.Time
	IsFromMe  bool
	ReplyTo   string
	Media     *types.MediaInfo
}

// HistoryRecord is a stored message as yielded by WalkMessages. Media is nil
// for messages without an attachment.
type HistoryRecord struct {
	ID        string
	ChatJID   string
	Timestamp time.Time
	ReplyTo   string
	Media     *types.MediaInfo
}

// BatchRecord is one row of the download ledger.
type BatchRecord struct {
	ID         string     `json:"id"`
	ChatJID    string     `json:"chat_jid"`
	Topic      string     `json:"topic,omitempty"`
	Dir        string     `json:"dir"`
	Requested  int        `json:"requested"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Bytes      int64      `json:"bytes"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type MessageStore struct {
	db *sql.DB
}

type ListMessagesParams struct {
	After     *time.Time
	Before    *time.Time
	Sender    *string
	ChatJID   *string
	Query     *string
	MediaOnly bool
	Limit     int
	Page      int
}

type ListChatsParams struct {
	Query *string
	Limit int
	Page  int
}

// WalkParams selects the history of one chat, optionally narrowed to the
// reply thread rooted at Topic.
type WalkParams struct {
	ChatJID string
	Topic   *string
}

func NewMessageStore(dbPath string) (*MessageStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Downloads record their results from several goroutines.
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			jid TEXT PRIMARY KEY,
			name TEXT,
			last_message_time TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT,
			chat_jid TEXT,
			sender TEXT,
			content TEXT,
			timestamp TIMESTAMP,
			is_from_me BOOLEAN,
			media_type TEXT,
			filename TEXT,
			url TEXT,
			direct_path TEXT,
			mime_type TEXT,
			media_key BLOB,
			file_sha256 BLOB,
			file_enc_sha256 BLOB,
			file_length INTEGER,
			local_path TEXT,
			downloaded_at TIMESTAMP,
			PRIMARY KEY (id, chat_jid),
			FOREIGN KEY (chat_jid) REFERENCES chats(jid)
		);

		CREATE TABLE IF NOT EXISTS download_batches (
			id TEXT PRIMARY KEY,
			chat_jid TEXT NOT NULL,
			topic TEXT,
			dir TEXT NOT NULL,
			requested INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ensureMessageColumns(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages (chat_jid, timestamp)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MessageStore{db: db}, nil
}

// ensureMessageColumns upgrades stores created by older builds in place.
func ensureMessageColumns(db *sql.DB) error {
	required := map[string]string{
		"direct_path":      "TEXT",
		"mime_type":        "TEXT",
		"local_path":       "TEXT",
		"downloaded_at":    "TIMESTAMP",
		"reply_to":         "TEXT",
		"thumbnail_length": "INTEGER",
	}

	for column, columnType := range required {
		exists, err := columnExists(db, "messages", column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.Exec(fmt.Sprintf("ALTER TABLE messages ADD COLUMN %s %s", column, columnType)); err != nil {
				// Ignore duplicate column errors for older SQLite versions that don't support IF NOT EXISTS.
				if !strings.Contains(strings.ToLower(err.Error()), "duplicate") {
					return fmt.Errorf("failed to add column %s: %w", column, err)
				}
			}
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan schema info: %w", err)
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}

func (s *MessageStore) StoreChat(jid, name string, lastMessageTime time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO chats (jid, name, last_message_time) VALUES (?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE
				WHEN excluded.name IS NOT NULL AND excluded.name != '' AND (excluded.name != chats.jid OR chats.name IS NULL OR chats.name = '' OR chats.name = chats.jid) THEN excluded.name
				WHEN chats.name IS NULL OR chats.name = '' THEN excluded.name
				ELSE chats.name
			END,
			last_message_time = excluded.last_message_time`,
		jid, name, lastMessageTime,
	)
	return err
}

// GetChat returns sql.ErrNoRows when jid is unknown.
func (s *MessageStore) GetChat(jid string) (Chat, error) {
	var c Chat
	var name sql.NullString
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT jid, name, last_message_time FROM chats WHERE jid = ?`, jid).
		Scan(&c.JID, &name, &last)
	if err != nil {
		return Chat{}, err
	}
	c.Name = name.String
	c.LastMessageTime = last.Time
	return c, nil
}

// FindChatsByName returns chats whose name matches exactly, ignoring case.
func (s *MessageStore) FindChatsByName(name string) ([]Chat, error) {
	rows, err := s.db.Query(
		`SELECT jid, name, last_message_time FROM chats
		 WHERE LOWER(name) = LOWER(?)
		 ORDER BY last_message_time DESC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChats(rows)
}

func (s *MessageStore) StoreMessage(m MessageRecord) error {
	var media types.MediaInfo
	if m.Media != nil {
		media = *m.Media
	}

	_, err := s.db.Exec(
		`INSERT INTO messages
		(id, chat_jid, sender, content, timestamp, is_from_me, reply_to, media_type, filename, url, direct_path, mime_type,
		 media_key, file_sha256, file_enc_sha256, file_length, thumbnail_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, chat_jid) DO UPDATE SET
			sender = excluded.sender,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_me = excluded.is_from_me,
			reply_to = COALESCE(NULLIF(excluded.reply_to, ''), messages.reply_to),
			media_type = COALESCE(NULLIF(excluded.media_type, ''), messages.media_type),
			filename = COALESCE(NULLIF(excluded.filename, ''), messages.filename),
			url = COALESCE(NULLIF(excluded.url, ''), messages.url),
			direct_path = COALESCE(NULLIF(excluded.direct_path, ''), messages.direct_path),
			mime_type = COALESCE(NULLIF(excluded.mime_type, ''), messages.mime_type),
			media_key = CASE WHEN excluded.media_key IS NOT NULL AND length(excluded.media_key) > 0 THEN excluded.media_key ELSE messages.media_key END,
			file_sha256 = CASE WHEN excluded.file_sha256 IS NOT NULL AND length(excluded.file_sha256) > 0 THEN excluded.file_sha256 ELSE messages.file_sha256 END,
			file_enc_sha256 = CASE WHEN excluded.file_enc_sha256 IS NOT NULL AND length(excluded.file_enc_sha256) > 0 THEN excluded.file_enc_sha256 ELSE messages.file_enc_sha256 END,
			file_length = CASE WHEN excluded.file_length > 0 THEN excluded.file_length ELSE messages.file_length END,
			thumbnail_length = CASE WHEN excluded.thumbnail_length > 0 THEN excluded.thumbnail_length ELSE messages.thumbnail_length END`,
		m.ID, m.ChatJID, m.Sender, m.Content, m.Timestamp, m.IsFromMe, m.ReplyTo,
		media.Type, media.Filename, media.URL, media.DirectPath, media.MimeType,
		media.MediaKey, media.FileSHA256, media.FileEncSHA256,
		int64(media.FileLength), int64(media.ThumbnailLength),
	)
	return err
}

func (s *MessageStore) ListMessages(params ListMessagesParams) ([]Message, error) {
	query := `SELECT m.id, m.chat_jid, COALESCE(c.name, ''), COALESCE(m.sender, ''), COALESCE(m.content, ''),
	                 m.timestamp, m.is_from_me, COALESCE(m.reply_to, ''), COALESCE(m.media_type, ''),
	                 COALESCE(m.filename, ''), COALESCE(m.local_path, '')
	          FROM messages m JOIN chats c ON m.chat_jid = c.jid WHERE 1=1`
	args := []interface{}{}

	if params.After != nil {
		query += " AND m.timestamp > ?"
		args = append(args, params.After)
	}
	if params.Before != nil {
		query += " AND m.timestamp < ?"
		args = append(args, params.Before)
	}
	if params.Sender != nil {
		query += " AND m.sender = ?"
		args = append(args, *params.Sender)
	}
	if params.ChatJID != nil {
		query += " AND m.chat_jid = ?"
		args = append(args, *params.ChatJID)
	}
	if params.Query != nil {
		query += " AND LOWER(m.content) LIKE LOWER(?)"
		args = append(args, "%"+*params.Query+"%")
	}
	if params.MediaOnly {
		query += " AND COALESCE(m.media_type, '') != ''"
	}

	query += " ORDER BY m.timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, params.Limit, params.Page*params.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err := rows.Scan(&m.ID, &m.ChatJID, &m.ChatName, &m.Sender, &m.Content, &m.Timestamp, &m.IsFromMe,
			&m.ReplyTo, &m.MediaType, &m.Filename, &m.LocalPath)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// WalkMessages streams the chat's messages oldest-first to fn. Rows with the
// same timestamp keep their insertion order. A non-nil error from fn stops the
// walk and is returned unchanged.
func (s *MessageStore) WalkMessages(ctx context.Context, params WalkParams, fn func(HistoryRecord) error) error {
	query := `
		SELECT
			m.id,
			m.chat_jid,
			m.timestamp,
			COALESCE(m.reply_to, ''),
			COALESCE(m.media_type, ''),
			COALESCE(m.filename, ''),
			COALESCE(m.url, ''),
			COALESCE(m.direct_path, ''),
			COALESCE(m.mime_type, ''),
			COALESCE(m.content, ''),
			m.media_key,
			m.file_sha256,
			m.file_enc_sha256,
			COALESCE(m.file_length, 0),
			COALESCE(m.thumbnail_length, 0)
		FROM messages m
		WHERE m.chat_jid = ?`
	args := []interface{}{params.ChatJID}
	if params.Topic != nil {
		query += " AND (m.id = ? OR m.reply_to = ?)"
		args = append(args, *params.Topic, *params.Topic)
	}
	query += " ORDER BY m.timestamp ASC, m.rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec HistoryRecord
		var media types.MediaInfo
		var fileLength, thumbLength int64
		if err := rows.Scan(
			&rec.ID,
			&rec.ChatJID,
			&rec.Timestamp,
			&rec.ReplyTo,
			&media.Type,
			&media.Filename,
			&media.URL,
			&media.DirectPath,
			&media.MimeType,
			&media.Caption,
			&media.MediaKey,
			&media.FileSHA256,
			&media.FileEncSHA256,
			&fileLength,
			&thumbLength,
		); err != nil {
			return fmt.Errorf("failed to scan history row: %w", err)
		}
		if media.Type != "" {
			if fileLength > 0 {
				media.FileLength = uint64(fileLength)
			}
			if thumbLength > 0 {
				media.ThumbnailLength = uint64(thumbLength)
			}
			rec.Media = &media
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	return nil
}

func (s *MessageStore) MarkMediaDownloaded(id, chatJID, localPath string, downloadedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE messages
		 SET local_path = ?, downloaded_at = ?
		 WHERE id = ? AND chat_jid = ?`,
		localPath, downloadedAt, id, chatJID,
	)
	return err
}

func (s *MessageStore) ListChats(params ListChatsParams) ([]Chat, error) {
	query := "SELECT jid, name, last_message_time FROM chats WHERE 1=1"
	args := []interface{}{}

	if params.Query != nil {
		query += " AND (LOWER(name) LIKE LOWER(?) OR jid LIKE ?)"
		args = append(args, "%"+*params.Query+"%", "%"+*params.Query+"%")
	}

	query += " ORDER BY last_message_time DESC LIMIT ? OFFSET ?"
	args = append(args, params.Limit, params.Page*params.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChats(rows)
}

func scanChats(rows *sql.Rows) ([]Chat, error) {
	var chats []Chat
	for rows.Next() {
		var c Chat
		var name sql.NullString
		var last sql.NullTime
		if err := rows.Scan(&c.JID, &name, &last); err != nil {
			return nil, err
		}
		c.Name = name.String
		c.LastMessageTime = last.Time
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// SaveBatch inserts or updates a ledger row.
func (s *MessageStore) SaveBatch(b BatchRecord) error {
	var topic sql.NullString
	if b.Topic != "" {
		topic = sql.NullString{String: b.Topic, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO download_batches
		(id, chat_jid, topic, dir, requested, succeeded, failed, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			requested = excluded.requested,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			bytes = excluded.bytes,
			finished_at = excluded.finished_at`,
		b.ID, b.ChatJID, topic, b.Dir, b.Requested, b.Succeeded, b.Failed, b.Bytes, b.StartedAt, b.FinishedAt,
	)
	return err
}

// ListBatches returns ledger rows, newest first.
func (s *MessageStore) ListBatches(limit int) ([]BatchRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, chat_jid, COALESCE(topic, ''), dir, requested, succeeded, failed, bytes, started_at, finished_at
		 FROM download_batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var b BatchRecord
		var finished sql.NullTime
		if err := rows.Scan(&b.ID, &b.ChatJID, &b.Topic, &b.Dir, &b.Requested, &b.Succeeded, &b.Failed,
			&b.Bytes, &b.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			b.FinishedAt = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
