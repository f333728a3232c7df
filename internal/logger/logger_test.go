package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesFileAndStdout(t *testing.T) {
	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "figcrop.log")

	require.NoError(t, Init(Options{Level: "debug", File: file, MaxSizeMB: 1, Stdout: &out}))
	defer Close()

	log.Debug().Int("page", 3).Msg("region resolved")

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.Equal(t, "region resolved", ev["message"])
	assert.Equal(t, "figcrop", ev["service"])
	assert.EqualValues(t, 3, ev["page"])

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "region resolved")
}

func TestInitLevelFallback(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Init(Options{Level: "loud", Stdout: &out}))

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestForSession(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Init(Options{Stdout: &out}))

	l := ForSession("abc")
	l.Info().Msg("opened")
	assert.Contains(t, out.String(), `"session":"abc"`)
}

func TestAxiomWriterDropsDebug(t *testing.T) {
	var sent []axiom.Event
	w := &axiomWriter{send: func(ev axiom.Event) { sent = append(sent, ev) }, service: "figcrop"}

	_, err := w.Write([]byte(`{"level":"debug","message":"noise"}`))
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"level":"warn","message":"render failed"}`))
	require.NoError(t, err)
	_, err = w.Write([]byte("not json"))
	require.NoError(t, err)

	require.Len(t, sent, 2)
	assert.Equal(t, "render failed", sent[0]["message"])
	assert.Equal(t, "figcrop", sent[0]["service"])
	assert.Equal(t, "not json", sent[1]["message"])
}

type recordingIngest struct {
	mu      sync.Mutex
	batches [][]axiom.Event
}

func (r *recordingIngest) ingest(_ context.Context, events []axiom.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return nil
}

func (r *recordingIngest) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func TestBatcherFlushesFullBatchesAndDrainsOnClose(t *testing.T) {
	rec := &recordingIngest{}
	b := newBatcher(time.Hour, rec.ingest)

	for i := 0; i < batchSize+5; i++ {
		b.Send(axiom.Event{"n": i})
	}
	require.NoError(t, b.Close())

	assert.Equal(t, []int{batchSize, 5}, rec.sizes())
	assert.Zero(t, b.Dropped())
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	rec := &recordingIngest{}
	b := newBatcher(10*time.Millisecond, rec.ingest)
	defer b.Close()

	b.Send(axiom.Event{"message": "tick"})
	assert.Eventually(t, func() bool { return len(rec.sizes()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestBatcherCountsDrops(t *testing.T) {
	block := make(chan struct{})
	b := newBatcher(time.Hour, func(context.Context, []axiom.Event) error {
		<-block
		return nil
	})

	// the first full batch parks the loop in ingest, the rest fill the queue
	for i := 0; i < batchSize+queueSize+50; i++ {
		b.Send(axiom.Event{"n": i})
	}
	assert.Positive(t, b.Dropped())
	close(block)
	require.NoError(t, b.Close())
}
