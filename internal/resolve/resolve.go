// Package resolve turns a user supplied identifier into the JID of a synced
// group or channel.
package resolve

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.mau.fi/whatsmeow/types"

	"github.com/vicentereig/whatsapp-media-dl/internal/store"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrChatNotFound      = errors.New("chat not found")
	ErrKindMismatch      = errors.New("identifier is not of the requested kind")
	ErrAmbiguous         = errors.New("identifier matches more than one chat")
)

type Kind string

const (
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// Server returns the JID server that chats of this kind live on.
func (k Kind) Server() string {
	if k == KindChannel {
		return types.NewsletterServer
	}
	return types.GroupServer
}

// ChatLookup is the part of the message store the resolver reads.
type ChatLookup interface {
	GetChat(jid string) (store.Chat, error)
	FindChatsByName(name string) ([]store.Chat, error)
}

type Resolver struct {
	chats ChatLookup
}

func New(chats ChatLookup) *Resolver {
	return &Resolver{chats: chats}
}

// Resolve accepts a full JID, a numeric ID (a leading minus sign is ignored)
// or an exact chat name.
func (r *Resolver) Resolve(identifier string, kind Kind) (store.Chat, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return store.Chat{}, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}

	switch {
	case strings.Contains(id, "@"):
		jid, err := types.ParseJID(id)
		if err != nil || jid.User == "" {
			return store.Chat{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
		}
		if jid.Server != kind.Server() {
			return store.Chat{}, fmt.Errorf("%w: %s is not a %s", ErrKindMismatch, jid, kind)
		}
		return r.byJID(jid.String())

	case isNumeric(id):
		digits := strings.TrimLeft(id, "-")
		return r.byJID(types.NewJID(digits, kind.Server()).String())

	default:
		return r.byName(id, kind)
	}
}

func (r *Resolver) byJID(jid string) (store.Chat, error) {
	chat, err := r.chats.GetChat(jid)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Chat{}, fmt.Errorf("%w: %s (run sync first)", ErrChatNotFound, jid)
	}
	if err != nil {
		return store.Chat{}, fmt.Errorf("failed to look up chat %s: %w", jid, err)
	}
	return chat, nil
}

func (r *Resolver) byName(name string, kind Kind) (store.Chat, error) {
	chats, err := r.chats.FindChatsByName(name)
	if err != nil {
		return store.Chat{}, fmt.Errorf("failed to look up chat %q: %w", name, err)
	}
	suffix := "@" + kind.Server()
	matches := lo.Filter(chats, func(c store.Chat, _ int) bool {
		return strings.HasSuffix(c.JID, suffix)
	})
	switch len(matches) {
	case 0:
		return store.Chat{}, fmt.Errorf("%w: no %s named %q", ErrChatNotFound, kind, name)
	case 1:
		return matches[0], nil
	default:
		jids := lo.Map(matches, func(c store.Chat, _ int) string { return c.JID })
		return store.Chat{}, fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(jids, ", "))
	}
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
