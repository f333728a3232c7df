package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSummary(t *testing.T) {
	c := New(Options{
		Redis: pingFunc(func(context.Context) error { return nil }),
		S3:    pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) }),
	})
	c.lookPath = func(string) (string, error) { return "/usr/bin/mutool", nil }

	s := c.Summary(context.Background())
	assert.Equal(t, Status{OK: true, Message: "Connected"}, s.Redis)
	assert.False(t, s.S3.OK)
	assert.Len(t, s.S3.Message, 120)
	assert.True(t, s.MuPDF.OK)
	assert.True(t, s.Healthy())
}

func TestSummaryMissingDependencies(t *testing.T) {
	c := New(Options{})
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	s := c.Summary(context.Background())
	assert.Equal(t, "In-memory status store", s.Redis.Message)
	assert.Equal(t, "Bucket not configured", s.S3.Message)
	assert.Equal(t, Status{OK: false, Message: "Binary not found"}, s.MuPDF)
	assert.False(t, s.Healthy())
}

func TestPingTimeout(t *testing.T) {
	c := New(Options{Redis: pingFunc(func(ctx context.Context) error { return context.DeadlineExceeded })})
	c.lookPath = func(string) (string, error) { return "", nil }
	assert.Equal(t, "timeout", c.Summary(context.Background()).Redis.Message)
}
