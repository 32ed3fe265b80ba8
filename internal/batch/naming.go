package batch

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// FileName is the on-disk name for ref: its rank zero-padded to four digits,
// then the suggested name or media_<messageID>. A missing extension is
// derived from the MIME type when one is known.
func FileName(ref types.MediaReference) string {
	base := ref.SuggestedName()
	if base == "" {
		base = "media_" + sanitize(ref.MessageID)
	}
	if filepath.Ext(base) == "" {
		base += extensionFor(ref.MimeType)
	}
	return fmt.Sprintf("%04d_%s", ref.Position, base)
}

// OutputDir is the batch directory for a user supplied identifier.
func OutputDir(root, identifier string) string {
	if root == "" {
		root = "."
	}
	return filepath.Join(root, "downloads_"+sanitize(identifier))
}

func extensionFor(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	if m := mimetype.Lookup(mt); m != nil {
		return m.Extension()
	}
	return ""
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
