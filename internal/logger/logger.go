package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Service    string
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration

	// Stdout replaces os.Stdout as the console sink.
	Stdout io.Writer
}

var (
	global zerolog.Logger
	ax     *batcher
)

// Init sets up the global logger: file rotation, console, optional Axiom
// forwarding of info+ events.
func Init(opts Options) error {
	if opts.Service == "" {
		opts.Service = "figcrop"
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	var writers []io.Writer
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, opts.Stdout)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomBatcher(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			// keep logging locally
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = client
			writers = append(writers, &axiomWriter{send: client.Send, service: opts.Service})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Str("service", opts.Service).Logger()
	log.Logger = global
	return nil
}

// Close flushes events queued for Axiom.
func Close() {
	if ax != nil {
		_ = ax.Close()
		ax = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// ForSession returns a child of the global logger tagged with a session id.
func ForSession(id string) zerolog.Logger {
	return log.With().Str("session", id).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom, dropping debug events.
type axiomWriter struct {
	send    func(axiom.Event)
	service string
}

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
		return len(p), nil
	}
	ev["service"] = w.service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.send(axiom.Event(ev))
	return len(p), nil
}

const (
	batchSize   = 200
	queueSize   = 1000
	sendTimeout = 15 * time.Second
)

// batcher queues events for an ingest function and flushes them in batches
// of batchSize or every interval. Events that do not fit the queue are
// counted and dropped.
type batcher struct {
	ingest   func(ctx context.Context, events []axiom.Event) error
	interval time.Duration
	queue    chan axiom.Event
	dropped  atomic.Int64
	done     chan struct{}
	stopped  sync.WaitGroup
}

func newBatcher(interval time.Duration, ingest func(context.Context, []axiom.Event) error) *batcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	b := &batcher{
		ingest:   ingest,
		interval: interval,
		queue:    make(chan axiom.Event, queueSize),
		done:     make(chan struct{}),
	}
	b.stopped.Add(1)
	go b.run()
	return b
}

func newAxiomBatcher(token, orgID, dataset string, interval time.Duration) (*batcher, error) {
	if dataset == "" {
		dataset = "dev_figcrop"
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return newBatcher(interval, func(ctx context.Context, events []axiom.Event) error {
		_, err := c.IngestEvents(ctx, dataset, events)
		return err
	}), nil
}

func (b *batcher) Send(ev axiom.Event) {
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue.
func (b *batcher) Dropped() int64 { return b.dropped.Load() }

func (b *batcher) run() {
	defer b.stopped.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	pending := make([]axiom.Event, 0, batchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := b.ingest(ctx, pending); err != nil {
			// the global logger may be the caller, report out of band
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(pending), err)
		}
		cancel()
		pending = make([]axiom.Event, 0, batchSize)
	}
	for {
		select {
		case ev := <-b.queue:
			pending = append(pending, ev)
			if len(pending) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.done:
			for {
				select {
				case ev := <-b.queue:
					pending = append(pending, ev)
					if len(pending) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued events and stops the batcher.
func (b *batcher) Close() error {
	close(b.done)
	b.stopped.Wait()
	return nil
}
