package client

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func bestContactName(info types.ContactInfo) string {
	if !info.Found {
		return ""
	}
	if name := strings.TrimSpace(info.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(info.FirstName); name != "" {
		return name
	}
	if name := strings.TrimSpace(info.BusinessName); name != "" {
		return name
	}
	if name := strings.TrimSpace(info.PushName); name != "" && name != "-" {
		return name
	}
	if name := strings.TrimSpace(info.RedactedPhone); name != "" {
		return name
	}
	return ""
}

// RememberName records a display name for a group or newsletter JID.
func (w *WAClient) RememberName(jid types.JID, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.names.Store(jid.ToNonAD().String(), name)
}

func (w *WAClient) learnNames(evt interface{}) {
	switch v := evt.(type) {
	case *events.JoinedGroup:
		w.RememberName(v.JID, v.GroupName.Name)
	case *events.GroupInfo:
		if v.Name != nil {
			w.RememberName(v.JID, v.Name.Name)
		}
	case *events.NewsletterJoin:
		w.RememberName(v.ID, v.ThreadMeta.Name.Text)
	}
}

// ResolveChatName picks the friendliest known name for chatJID, falling back
// to the sender's push name and finally the JID itself.
func (w *WAClient) ResolveChatName(ctx context.Context, chatJID string, msg *events.Message) string {
	if chatJID == "" && msg != nil {
		chatJID = msg.Info.Chat.String()
	}
	fallback := chatJID

	parsed, err := types.ParseJID(chatJID)
	if err == nil {
		if name, ok := w.names.Load(parsed.ToNonAD().String()); ok {
			return name.(string)
		}
		isShared := parsed.Server == types.GroupServer || parsed.Server == types.NewsletterServer || parsed.IsBroadcastList()
		if isShared {
			// a sender's push name is not the group's name
			return fallback
		}
		if w.contactLookup != nil {
			if info, err := w.contactLookup(ctx, parsed.ToNonAD()); err == nil {
				if name := bestContactName(info); name != "" {
					return name
				}
			}
		}
	}

	if msg != nil {
		if name := strings.TrimSpace(msg.Info.PushName); name != "" && name != "-" {
			return name
		}
	}

	return fallback
}
