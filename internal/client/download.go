package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"go.mau.fi/whatsmeow"

	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// ErrNoMedia is returned when a request lacks the path needed to fetch it.
var ErrNoMedia = errors.New("media direct path is empty")

// DownloadMedia streams the attachment described by req into targetPath. The
// file is written in place, so a failed transfer leaves its partial bytes
// behind. onProgress may be nil.
func (w *WAClient) DownloadMedia(ctx context.Context, req types.MediaDownloadRequest, targetPath string, onProgress types.ProgressFunc) (int64, error) {
	if w == nil || w.client == nil {
		return 0, ErrNotInitialized
	}
	if strings.TrimSpace(req.DirectPath) == "" {
		return 0, ErrNoMedia
	}
	mediaType, err := mediaTypeFromString(req.MediaType)
	if err != nil {
		return 0, err
	}

	file, err := os.OpenFile(targetPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create media file: %w", err)
	}
	pf := newProgressFile(file, int64(req.FileLength), onProgress)
	defer pf.Close()

	length := -1
	if req.FileLength > 0 && req.FileLength < math.MaxInt32 {
		length = int(req.FileLength)
	}

	if err := w.client.DownloadMediaWithPathToFile(ctx, req.DirectPath, req.FileEncSHA256, req.FileSHA256, req.MediaKey, length, mediaType, "", pf); err != nil {
		return pf.written, err
	}

	if err := file.Sync(); err != nil {
		return pf.written, fmt.Errorf("failed to flush media file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return pf.written, fmt.Errorf("failed to stat downloaded media: %w", err)
	}
	return info.Size(), nil
}

func mediaTypeFromString(mediaType string) (whatsmeow.MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case types.KindImage, types.KindSticker:
		return whatsmeow.MediaImage, nil
	case types.KindVideo:
		return whatsmeow.MediaVideo, nil
	case types.KindAudio:
		return whatsmeow.MediaAudio, nil
	case types.KindDocument:
		return whatsmeow.MediaDocument, nil
	default:
		return "", fmt.Errorf("unsupported media type: %s", mediaType)
	}
}

// progressFile reports bytes as the transport writes them. Methods are
// delegated one by one: embedding *os.File would expose ReadFrom and let
// io.Copy bypass Write.
//
// whatsmeow downloads the encrypted body with sequential writes, decrypts in
// place with WriteAt and then truncates away the padding; the Truncate call is
// where the final plaintext size becomes known.
type progressFile struct {
	f          *os.File
	written    int64
	total      int64
	onProgress types.ProgressFunc
}

func newProgressFile(f *os.File, total int64, onProgress types.ProgressFunc) *progressFile {
	return &progressFile{f: f, total: total, onProgress: onProgress}
}

func (p *progressFile) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	if n > 0 {
		p.written += int64(n)
		p.report(p.written, p.total)
	}
	return n, err
}

func (p *progressFile) Truncate(size int64) error {
	if err := p.f.Truncate(size); err != nil {
		return err
	}
	p.written = size
	if size > 0 {
		p.total = size
	}
	p.report(p.written, p.total)
	return nil
}

// A seek to the start means whatsmeow is retrying the download from
// scratch, so the bytes of the failed attempt no longer count.
func (p *progressFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.f.Seek(offset, whence)
	if err == nil && whence == io.SeekStart && pos == 0 {
		p.written = 0
		p.report(0, p.total)
	}
	return pos, err
}

func (p *progressFile) report(done, total int64) {
	if p.onProgress != nil {
		p.onProgress(done, total)
	}
}

func (p *progressFile) Read(b []byte) (int, error)               { return p.f.Read(b) }
func (p *progressFile) ReadAt(b []byte, off int64) (int, error)  { return p.f.ReadAt(b, off) }
func (p *progressFile) WriteAt(b []byte, off int64) (int, error) { return p.f.WriteAt(b, off) }
func (p *progressFile) Stat() (os.FileInfo, error)               { return p.f.Stat() }
func (p *progressFile) Close() error                             { return p.f.Close() }
