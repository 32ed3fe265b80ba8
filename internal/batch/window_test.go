package batch

import (
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

func history(n int) []types.MediaReference {
	refs := make([]types.MediaReference, n)
	for i := range refs {
		refs[i] = types.MediaReference{
			Position:  i + 1,
			MessageID: fmt.Sprintf("m%d", i+1),
			Payload:   types.Other{Info: types.MediaInfo{Type: types.KindVideo, FileLength: 10}},
		}
	}
	return refs
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		skip      int
		limit     *int
		wantStart int
		wantLen   int
	}{
		{name: "skip 20 limit 40", total: 100, skip: 20, limit: lo.ToPtr(40), wantStart: 20, wantLen: 40},
		{name: "limit clamped to tail", total: 100, skip: 95, limit: lo.ToPtr(40), wantStart: 95, wantLen: 5},
		{name: "skip equal to length", total: 100, skip: 100, wantStart: 100, wantLen: 0},
		{name: "skip past length", total: 3, skip: 7, limit: lo.ToPtr(1), wantStart: 7, wantLen: 0},
		{name: "no limit takes the rest", total: 10, skip: 4, wantStart: 4, wantLen: 6},
		{name: "empty history", total: 0, wantLen: 0},
		{name: "negative skip clamps to zero", total: 5, skip: -3, wantStart: 0, wantLen: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := history(tt.total)
			got, start := Window(refs, types.DownloadWindow{Skip: tt.skip, Limit: tt.limit})

			assert.Equal(t, tt.wantStart, start)
			require.Len(t, got, tt.wantLen)
			for i, ref := range got {
				assert.Equal(t, start+i+1, ref.Position, "rank must follow the original order")
			}
		})
	}
}

func TestWindowPrefixReflectsOriginalRank(t *testing.T) {
	refs := history(30)
	got, start := Window(refs, types.DownloadWindow{Skip: 10, Limit: lo.ToPtr(5)})

	require.Equal(t, 10, start)
	assert.Regexp(t, `^0011_`, FileName(got[0]))
	assert.Regexp(t, `^0015_`, FileName(got[4]))
}

func TestEstimateCoversOnlyWindow(t *testing.T) {
	refs := []types.MediaReference{
		{Position: 1, Payload: types.Document{Info: types.MediaInfo{Type: types.KindDocument, FileLength: 1000}}},
		{Position: 2, Payload: types.Photo{Info: types.MediaInfo{Type: types.KindImage}, Sizes: []int64{10, 500, 90}}},
		{Position: 3, Payload: types.Other{Info: types.MediaInfo{Type: types.KindAudio}}},
		{Position: 4, Payload: types.Other{Info: types.MediaInfo{Type: types.KindVideo, FileLength: 7000}}},
		{Position: 5},
	}

	window, _ := Window(refs, types.DownloadWindow{Skip: 1, Limit: lo.ToPtr(3)})

	assert.Equal(t, int64(500+0+7000), Estimate(window))
	assert.Equal(t, int64(1000+500+7000), Estimate(refs))
}
