package client

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	goproto "google.golang.org/protobuf/proto"

	mediatypes "github.com/vicentereig/whatsapp-media-dl/internal/types"
)

func groupMessage(id string, m *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("120363296603494645", types.GroupServer),
				Sender:  types.NewJID("54321", types.DefaultUserServer),
				IsGroup: true,
			},
			ID:        id,
			Timestamp: time.Unix(1700000000, 0).UTC(),
		},
		Message: m,
	}
}

func TestHandleMessageReturnsTextContentWithoutMedia(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	msg := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("12345", types.DefaultUserServer),
				Sender:   types.NewJID("54321", types.DefaultUserServer),
				IsFromMe: false,
			},
			ID:        "txt-1",
			Timestamp: now,
		},
		Message: &waE2E.Message{
			Conversation: goproto.String("hello world"),
		},
	}

	details := HandleMessage(msg)

	assert.Equal(t, "txt-1", details.ID)
	assert.Equal(t, "12345@s.whatsapp.net", details.ChatJID)
	assert.Equal(t, "54321", details.Sender)
	assert.Equal(t, "hello world", details.Content)
	assert.Equal(t, now, details.Timestamp)
	assert.False(t, details.IsFromMe)
	assert.Empty(t, details.ReplyTo)
	assert.Nil(t, details.Media)
}

func TestHandleMessageExtractsImageMediaMetadata(t *testing.T) {
	directPath := "/v/t62.7119-24/ABC123"
	mediaKey := []byte{1, 2, 3}
	fileSha := []byte{4, 5, 6}
	fileEncSha := []byte{7, 8, 9}

	details := HandleMessage(groupMessage("img-1", &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       goproto.String("Look at this"),
			DirectPath:    goproto.String(directPath),
			Mimetype:      goproto.String("image/jpeg"),
			FileLength:    goproto.Uint64(2048),
			MediaKey:      mediaKey,
			FileSHA256:    fileSha,
			FileEncSHA256: fileEncSha,
			JPEGThumbnail: make([]byte, 300),
		},
	}))
	require.NotNil(t, details.Media)

	assert.Equal(t, "img-1", details.ID)
	assert.Equal(t, "120363296603494645@g.us", details.ChatJID)
	assert.Equal(t, "Look at this", details.Content)

	media := details.Media
	assert.Equal(t, mediatypes.KindImage, media.Type)
	assert.Equal(t, "Look at this", media.Caption)
	assert.Equal(t, "image/jpeg", media.MimeType)
	assert.Equal(t, directPath, media.DirectPath)
	assert.Equal(t, mediaKey, media.MediaKey)
	assert.Equal(t, fileSha, media.FileSHA256)
	assert.Equal(t, fileEncSha, media.FileEncSHA256)
	assert.Equal(t, uint64(2048), media.FileLength)
	assert.Equal(t, uint64(300), media.ThumbnailLength)

	size, ok := media.Payload().Size()
	assert.True(t, ok)
	assert.Equal(t, int64(2048), size)
}

func TestHandleMessageExtractsDocumentReply(t *testing.T) {
	details := HandleMessage(groupMessage("doc-1", &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			FileName:    goproto.String("route.gpx"),
			DirectPath:  goproto.String("/v/t62/doc"),
			Mimetype:    goproto.String("application/gpx+xml"),
			FileLength:  goproto.Uint64(4096),
			ContextInfo: &waE2E.ContextInfo{StanzaID: goproto.String("root-1")},
		},
	}))

	require.NotNil(t, details.Media)
	assert.Equal(t, mediatypes.KindDocument, details.Media.Type)
	assert.Equal(t, "route.gpx", details.Media.Filename)
	assert.Equal(t, "root-1", details.ReplyTo)
}

func TestHandleMessageTextReplyHasNoMedia(t *testing.T) {
	details := HandleMessage(groupMessage("txt-2", &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        goproto.String("nice"),
			ContextInfo: &waE2E.ContextInfo{StanzaID: goproto.String("root-1")},
		},
	}))

	assert.Equal(t, "nice", details.Content)
	assert.Equal(t, "root-1", details.ReplyTo)
	assert.Nil(t, details.Media)
}

func TestHandleMessageStickerAndAudio(t *testing.T) {
	sticker := HandleMessage(groupMessage("st-1", &waE2E.Message{
		StickerMessage: &waE2E.StickerMessage{Mimetype: goproto.String("image/webp")},
	}))
	require.NotNil(t, sticker.Media)
	assert.Equal(t, mediatypes.KindSticker, sticker.Media.Type)
	assert.Equal(t, "[Sticker]", sticker.Content)

	audio := HandleMessage(groupMessage("au-1", &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{Mimetype: goproto.String("audio/ogg; codecs=opus")},
	}))
	require.NotNil(t, audio.Media)
	assert.Equal(t, mediatypes.KindAudio, audio.Media.Type)
	assert.Equal(t, "[Audio]", audio.Content)
}

func TestParseHistorySync(t *testing.T) {
	var parsedFor []types.JID
	w := &WAClient{
		log: zerolog.Nop(),
		parseWebMessage: func(chat types.JID, msg *waWeb.WebMessageInfo) (*events.Message, error) {
			parsedFor = append(parsedFor, chat)
			if msg.GetMessage().GetConversation() == "corrupt" {
				return nil, errors.New("bad message")
			}
			return &events.Message{
				Info: types.MessageInfo{
					MessageSource: types.MessageSource{Chat: chat},
					ID:            "parsed",
				},
				Message: msg.GetMessage(),
			}, nil
		},
	}

	evt := &events.HistorySync{Data: &waHistorySync.HistorySync{
		Conversations: []*waHistorySync.Conversation{
			{
				ID:   goproto.String("120363296603494645@g.us"),
				Name: goproto.String("Trail Runners"),
				Messages: []*waHistorySync.HistorySyncMsg{
					{Message: &waWeb.WebMessageInfo{Message: &waE2E.Message{Conversation: goproto.String("hi")}}},
					{Message: &waWeb.WebMessageInfo{Message: &waE2E.Message{Conversation: goproto.String("corrupt")}}},
					{Message: &waWeb.WebMessageInfo{}},
				},
			},
		},
	}}

	chats := w.ParseHistorySync(evt)

	require.Len(t, chats, 1)
	assert.Equal(t, "120363296603494645@g.us", chats[0].JID)
	assert.Equal(t, "Trail Runners", chats[0].Name)
	require.Len(t, chats[0].Messages, 1)
	assert.Equal(t, "hi", chats[0].Messages[0].Content)
	assert.Len(t, parsedFor, 2)

	// group names from history feed later name resolution
	name, ok := w.names.Load("120363296603494645@g.us")
	assert.True(t, ok)
	assert.Equal(t, "Trail Runners", name)
}

func TestProgressFileReportsWritesAndTruncate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "media.bin"))
	require.NoError(t, err)

	type call struct{ done, total int64 }
	var calls []call
	pf := newProgressFile(f, 0, func(done, total int64) {
		calls = append(calls, call{done, total})
	})
	defer pf.Close()

	_, err = pf.Write(make([]byte, 10))
	require.NoError(t, err)
	_, err = pf.Write(make([]byte, 6))
	require.NoError(t, err)
	// in-place rewrites are not new bytes
	_, err = pf.WriteAt(make([]byte, 4), 0)
	require.NoError(t, err)
	require.NoError(t, pf.Truncate(12))

	assert.Equal(t, []call{{10, 0}, {16, 0}, {12, 12}}, calls)

	info, err := pf.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())
}

func TestProgressFileRestartsCountOnRetry(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "media.bin"))
	require.NoError(t, err)

	type call struct{ done, total int64 }
	var calls []call
	pf := newProgressFile(f, 100, func(done, total int64) {
		calls = append(calls, call{done, total})
	})
	defer pf.Close()

	// first attempt dies after 60 bytes, the retry rewinds and writes it all
	_, err = pf.Write(make([]byte, 60))
	require.NoError(t, err)
	pos, err := pf.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.Zero(t, pos)
	_, err = pf.Write(make([]byte, 100))
	require.NoError(t, err)

	assert.Equal(t, []call{{60, 100}, {0, 100}, {100, 100}}, calls)
	assert.Equal(t, int64(100), pf.written)

	// seeking elsewhere is not a restart
	_, err = pf.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pf.written)

	info, err := pf.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Size())
}

func TestMediaTypeFromString(t *testing.T) {
	for _, kind := range []string{"image", "video", "audio", "document", "sticker", " Image "} {
		_, err := mediaTypeFromString(kind)
		assert.NoError(t, err, kind)
	}
	_, err := mediaTypeFromString("poll")
	assert.Error(t, err)
}

func TestDownloadMediaRequiresClient(t *testing.T) {
	var w *WAClient
	_, err := w.DownloadMedia(context.Background(), mediatypes.MediaDownloadRequest{DirectPath: "/x"}, "unused", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
