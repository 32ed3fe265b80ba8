package client

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	mediatypes "github.com/vicentereig/whatsapp-media-dl/internal/types"
)

type MessageDetails struct {
	ID        string
	ChatJID   string
	Sender    string
	Content   string
	Timestamp time.Time
	IsFromMe  bool
	// ReplyTo is the stanza ID of the quoted message, if any.
	ReplyTo string
	Media   *mediatypes.MediaInfo
}

// SyncedChat is one conversation of a history sync blob.
type SyncedChat struct {
	JID      string
	Name     string
	Messages []MessageDetails
}

// contextual is implemented by every waE2E message that can quote another.
type contextual interface {
	GetContextInfo() *waE2E.ContextInfo
}

// HandleMessage flattens a message event into the fields the store keeps.
func HandleMessage(msg *events.Message) MessageDetails {
	sender := msg.Info.Sender.User
	if sender == "" {
		if s := msg.Info.Sender.String(); s != "" {
			sender = s
		}
	}

	details := MessageDetails{
		ID:        msg.Info.ID,
		ChatJID:   msg.Info.Chat.String(),
		Sender:    sender,
		Timestamp: msg.Info.Timestamp,
		IsFromMe:  msg.Info.IsFromMe,
	}

	m := msg.Message
	if m == nil {
		return details
	}

	var quoting contextual
	switch {
	case m.GetConversation() != "":
		details.Content = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		details.Content = m.GetExtendedTextMessage().GetText()
		quoting = m.GetExtendedTextMessage()
	}

	if img := m.GetImageMessage(); img != nil {
		quoting = img
		details.Content = firstNonEmpty(details.Content, img.GetCaption())
		details.Media = &mediatypes.MediaInfo{
			Type:            mediatypes.KindImage,
			URL:             img.GetURL(),
			DirectPath:      img.GetDirectPath(),
			MimeType:        img.GetMimetype(),
			Caption:         img.GetCaption(),
			MediaKey:        cloneBytes(img.GetMediaKey()),
			FileSHA256:      cloneBytes(img.GetFileSHA256()),
			FileEncSHA256:   cloneBytes(img.GetFileEncSHA256()),
			FileLength:      img.GetFileLength(),
			ThumbnailLength: uint64(len(img.GetJPEGThumbnail())),
		}
	} else if video := m.GetVideoMessage(); video != nil {
		quoting = video
		details.Content = firstNonEmpty(details.Content, video.GetCaption())
		details.Media = &mediatypes.MediaInfo{
			Type:          mediatypes.KindVideo,
			URL:           video.GetURL(),
			DirectPath:    video.GetDirectPath(),
			MimeType:      video.GetMimetype(),
			Caption:       video.GetCaption(),
			MediaKey:      cloneBytes(video.GetMediaKey()),
			FileSHA256:    cloneBytes(video.GetFileSHA256()),
			FileEncSHA256: cloneBytes(video.GetFileEncSHA256()),
			FileLength:    video.GetFileLength(),
		}
	} else if audio := m.GetAudioMessage(); audio != nil {
		quoting = audio
		details.Content = firstNonEmpty(details.Content, "[Audio]")
		details.Media = &mediatypes.MediaInfo{
			Type:          mediatypes.KindAudio,
			URL:           audio.GetURL(),
			DirectPath:    audio.GetDirectPath(),
			MimeType:      audio.GetMimetype(),
			MediaKey:      cloneBytes(audio.GetMediaKey()),
			FileSHA256:    cloneBytes(audio.GetFileSHA256()),
			FileEncSHA256: cloneBytes(audio.GetFileEncSHA256()),
			FileLength:    audio.GetFileLength(),
		}
	} else if doc := m.GetDocumentMessage(); doc != nil {
		quoting = doc
		details.Content = firstNonEmpty(details.Content, doc.GetCaption())
		details.Media = &mediatypes.MediaInfo{
			Type:          mediatypes.KindDocument,
			Filename:      doc.GetFileName(),
			URL:           doc.GetURL(),
			DirectPath:    doc.GetDirectPath(),
			MimeType:      doc.GetMimetype(),
			Caption:       doc.GetCaption(),
			MediaKey:      cloneBytes(doc.GetMediaKey()),
			FileSHA256:    cloneBytes(doc.GetFileSHA256()),
			FileEncSHA256: cloneBytes(doc.GetFileEncSHA256()),
			FileLength:    doc.GetFileLength(),
		}
	} else if sticker := m.GetStickerMessage(); sticker != nil {
		quoting = sticker
		details.Content = firstNonEmpty(details.Content, "[Sticker]")
		details.Media = &mediatypes.MediaInfo{
			Type:          mediatypes.KindSticker,
			URL:           sticker.GetURL(),
			DirectPath:    sticker.GetDirectPath(),
			MimeType:      sticker.GetMimetype(),
			MediaKey:      cloneBytes(sticker.GetMediaKey()),
			FileSHA256:    cloneBytes(sticker.GetFileSHA256()),
			FileEncSHA256: cloneBytes(sticker.GetFileEncSHA256()),
			FileLength:    sticker.GetFileLength(),
		}
	}

	if quoting != nil {
		details.ReplyTo = quoting.GetContextInfo().GetStanzaID()
	}

	return details
}

// ParseHistorySync converts a history sync blob into per-chat messages.
// Messages that fail to parse are skipped and logged.
func (w *WAClient) ParseHistorySync(evt *events.HistorySync) []SyncedChat {
	if evt == nil || evt.Data == nil || w.parseWebMessage == nil {
		return nil
	}

	var chats []SyncedChat
	for _, conv := range evt.Data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			w.log.Debug().Err(err).Str("chat", conv.GetID()).Msg("skipping conversation with bad JID")
			continue
		}

		chat := SyncedChat{JID: chatJID.String(), Name: conv.GetName()}
		if chat.Name != "" && (chatJID.Server == types.GroupServer || chatJID.Server == types.NewsletterServer) {
			w.RememberName(chatJID, chat.Name)
		}

		for _, hm := range conv.GetMessages() {
			raw := hm.GetMessage()
			if raw == nil || raw.GetMessage() == nil {
				continue
			}
			parsed, err := w.parseWebMessage(chatJID, raw)
			if err != nil {
				w.log.Debug().Err(err).Str("chat", chat.JID).Msg("skipping unparsable history message")
				continue
			}
			chat.Messages = append(chat.Messages, HandleMessage(parsed))
		}
		chats = append(chats, chat)
	}
	return chats
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
