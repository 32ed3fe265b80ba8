// Package types provides shared data structures used across packages.
// This enables dependency inversion: client, store and batch import types,
// rather than importing each other.
package types

import "path/filepath"

// Media kinds as stored in the messages table.
const (
	KindImage    = "image"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindDocument = "document"
	KindSticker  = "sticker"
)

// MediaDownloadRequest contains parameters for downloading media from WhatsApp.
// Used by both client (to perform download) and commands (to request download).
type MediaDownloadRequest struct {
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
	FileLength    uint64
	MediaType     string
	MimeType      string
}

// MediaInfo is the raw attachment metadata extracted from a message.
type MediaInfo struct {
	Type            string
	Filename        string
	URL             string
	DirectPath      string
	MimeType        string
	Caption         string
	MediaKey        []byte
	FileSHA256      []byte
	FileEncSHA256   []byte
	FileLength      uint64
	ThumbnailLength uint64
}

// Request builds the transport request for this attachment.
func (m MediaInfo) Request() MediaDownloadRequest {
	return MediaDownloadRequest{
		URL:           m.URL,
		DirectPath:    m.DirectPath,
		MediaKey:      m.MediaKey,
		FileSHA256:    m.FileSHA256,
		FileEncSHA256: m.FileEncSHA256,
		FileLength:    m.FileLength,
		MediaType:     m.Type,
		MimeType:      m.MimeType,
	}
}

// Payload maps the raw metadata onto its payload variant.
func (m MediaInfo) Payload() MediaPayload {
	switch m.Type {
	case KindDocument:
		return Document{Info: m}
	case KindImage, KindSticker:
		var sizes []int64
		if m.ThumbnailLength > 0 {
			sizes = append(sizes, int64(m.ThumbnailLength))
		}
		if m.FileLength > 0 {
			sizes = append(sizes, int64(m.FileLength))
		}
		return Photo{Info: m, Sizes: sizes}
	default:
		return Other{Info: m}
	}
}

// MediaPayload is the downloadable part of a message. The set of variants is
// closed: Document, Photo and Other.
type MediaPayload interface {
	Kind() string
	SuggestedName() string
	// Size reports the best known byte count, false when unknown.
	Size() (int64, bool)
	Request() MediaDownloadRequest
	mediaPayload()
}

// Document carries a user supplied file name and an exact length.
type Document struct {
	Info MediaInfo
}

func (d Document) Kind() string { return KindDocument }

func (d Document) SuggestedName() string { return cleanName(d.Info.Filename) }

func (d Document) Size() (int64, bool) {
	if d.Info.FileLength == 0 {
		return 0, false
	}
	return int64(d.Info.FileLength), true
}

func (d Document) Request() MediaDownloadRequest { return d.Info.Request() }

func (Document) mediaPayload() {}

// Photo only knows per-resolution sizes; the largest one is the estimate.
type Photo struct {
	Info  MediaInfo
	Sizes []int64
}

func (p Photo) Kind() string { return p.Info.Type }

func (p Photo) SuggestedName() string { return "" }

func (p Photo) Size() (int64, bool) {
	var largest int64
	for _, s := range p.Sizes {
		if s > largest {
			largest = s
		}
	}
	return largest, largest > 0
}

func (p Photo) Request() MediaDownloadRequest { return p.Info.Request() }

func (Photo) mediaPayload() {}

// Other covers audio, video and anything else without a file name.
type Other struct {
	Info MediaInfo
}

func (o Other) Kind() string { return o.Info.Type }

func (o Other) SuggestedName() string { return "" }

func (o Other) Size() (int64, bool) {
	if o.Info.FileLength == 0 {
		return 0, false
	}
	return int64(o.Info.FileLength), true
}

func (o Other) Request() MediaDownloadRequest { return o.Info.Request() }

func (Other) mediaPayload() {}

// MediaReference describes one downloadable attachment of the history.
type MediaReference struct {
	// Position is the 1-based rank in the full, unwindowed, oldest-first
	// media history. Assigned once by the producer.
	Position  int
	MessageID string
	ChatJID   string
	MimeType  string
	Payload   MediaPayload
}

// SuggestedName returns the human assigned file name, if any.
func (r MediaReference) SuggestedName() string {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.SuggestedName()
}

// SizeHint returns the byte count known before transfer, if any.
func (r MediaReference) SizeHint() (int64, bool) {
	if r.Payload == nil {
		return 0, false
	}
	return r.Payload.Size()
}

// DownloadWindow selects a contiguous range of the media history.
type DownloadWindow struct {
	Skip  int
	Limit *int
}

// ProgressFunc receives (bytesSoFar, total); total <= 0 means unknown.
type ProgressFunc func(done, total int64)

func cleanName(name string) string {
	if name == "" {
		return ""
	}
	// Windows separators survive filepath.Base on unix.
	out := []rune(name)
	for i, r := range out {
		if r == '\\' {
			out[i] = '/'
		}
	}
	base := filepath.Base(string(out))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
