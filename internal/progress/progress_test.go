package progress

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type collectRenderer struct {
	got []Event
}

func (c *collectRenderer) Render(events <-chan Event) {
	for e := range events {
		c.got = append(c.got, e)
	}
}

func TestReporterPublishesLateTotalAsResize(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, 1, "0001_a.bin", "m1")

	r.Start(0)
	r.Update(10, 0)
	r.Update(20, 100)
	r.Update(100, 100)
	r.Finish(100, nil)

	assert.Equal(t, []EventKind{Started, Advanced, Resized, Advanced, Advanced, Finished}, sink.kinds())
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, int64(100), last.Total)
	assert.Equal(t, "m1", last.MessageID)
}

func TestReporterFinishWithUnknownTotalUsesDone(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, 2, "0002_b.bin", "m2")

	r.Start(0)
	r.Finish(42, nil)

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, int64(42), last.Total)
}

func TestNilSinkDiscards(t *testing.T) {
	r := NewReporter(nil, 1, "x", "m")
	assert.NotPanics(t, func() {
		r.Start(10)
		r.Update(5, 10)
		r.Finish(10, nil)
	})
}

func TestHubDeliversLifecycleEventsFromManyPublishers(t *testing.T) {
	c := &collectRenderer{}
	h := NewHub(c, 4)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := NewReporter(h, id, "n", "m")
			r.Start(10)
			r.Update(5, 10)
			r.Finish(10, nil)
		}(i)
	}
	wg.Wait()
	h.Close()

	finished := 0
	started := 0
	for _, e := range c.got {
		switch e.Kind {
		case Finished:
			finished++
		case Started:
			started++
		}
	}
	assert.Equal(t, 20, started)
	assert.Equal(t, 20, finished)
}

func TestHubIgnoresPublishAfterClose(t *testing.T) {
	h := NewHub(&collectRenderer{}, 1)
	h.Close()

	assert.NotPanics(t, func() {
		h.Publish(Event{Kind: Finished})
		h.Close()
	})
}

func TestLineRendererPrintsFinishedAndFailures(t *testing.T) {
	var buf bytes.Buffer
	h := NewHub(NewLineRenderer(&buf, 2), 8)

	ok := NewReporter(h, 1, "0001_photo.jpg", "m1")
	ok.Start(2048)
	ok.Update(2048, 2048)
	ok.Finish(2048, nil)

	bad := NewReporter(h, 2, "0002_media_m2", "m2")
	bad.Start(0)
	bad.Finish(0, errors.New("connection reset"))
	h.Close()

	out := buf.String()
	assert.Contains(t, out, "[1/2] 0001_photo.jpg (2.0 KiB)")
	assert.Contains(t, out, "Failed to download message m2 - connection reset")
}

func TestHumanBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		-1:              "0 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		20 * 1024:       "20 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		require.Equal(t, want, HumanBytes(in), "HumanBytes(%d)", in)
	}
}

func TestBarsModelTracksRows(t *testing.T) {
	m := newBarsModel(2)

	m.apply(Event{Kind: Started, TaskID: 1, Name: "0001_a", Total: 100})
	m.apply(Event{Kind: Advanced, TaskID: 1, Name: "0001_a", Done: 50, Total: 100})
	require.Contains(t, m.rows, 1)
	assert.Equal(t, int64(50), m.rows[1].done)
	assert.Contains(t, m.View(), "0/2 done")

	cmd := m.apply(Event{Kind: Finished, TaskID: 1, Name: "0001_a", Done: 100, Total: 100})
	assert.NotNil(t, cmd)
	assert.NotContains(t, m.rows, 1)

	m.apply(Event{Kind: Finished, TaskID: 2, Name: "0002_b", Err: errors.New("boom")})
	assert.Contains(t, m.View(), "2/2 done, 1 failed")
}
