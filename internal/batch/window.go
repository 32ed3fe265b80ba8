package batch

import "github.com/vicentereig/whatsapp-media-dl/internal/types"

// Window returns the contiguous sub-sequence selected by w and the index of
// its first element in refs. Inputs are clamped, never rejected.
func Window(refs []types.MediaReference, w types.DownloadWindow) ([]types.MediaReference, int) {
	start := w.Skip
	if start < 0 {
		start = 0
	}
	if start >= len(refs) {
		return nil, start
	}
	end := len(refs)
	if w.Limit != nil && *w.Limit >= 0 && start+*w.Limit < end {
		end = start + *w.Limit
	}
	return refs[start:end], start
}
