package statuscheck

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Pinger models a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the external dependencies.
type Checker struct {
	redis    Pinger
	s3       Pinger
	lookPath func(string) (string, error)
	mutool   string
}

// Options configures the Checker. A nil Redis means session status is kept
// in memory; a nil S3 means exports are download-only.
type Options struct {
	Redis  Pinger
	S3     Pinger
	Mutool string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis Status `json:"redis"`
	S3    Status `json:"s3"`
	MuPDF Status `json:"mupdf"`
}

// Healthy reports whether the service can extract figures. Redis and S3 are
// optional.
func (s Summary) Healthy() bool { return s.MuPDF.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	if opts.Mutool == "" {
		opts.Mutool = "mutool"
	}
	return &Checker{redis: opts.Redis, s3: opts.S3, lookPath: exec.LookPath, mutool: opts.Mutool}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis: c.ping(ctx, c.redis, 2*time.Second, "In-memory status store"),
		S3:    c.ping(ctx, c.s3, 5*time.Second, "Bucket not configured"),
		MuPDF: c.checkMuPDF(),
	}
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration, missing string) Status {
	if p == nil {
		return Status{OK: false, Message: missing}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkMuPDF() Status {
	if _, err := c.lookPath(c.mutool); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
