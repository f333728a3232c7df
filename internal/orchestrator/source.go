package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/storage"
)

// Temp file prefixes; CleanupTemps only touches these.
const (
	prefixHTTP   = "pdfdl-"
	prefixS3     = "s3pdf-"
	prefixUpload = "upload-"
)

// fetchSource makes the PDF referenced by ref available on local disk.
// Supports:
// - s3://bucket/key (downloaded with the S3 client)
// - http(s):// URLs
// - file://path or plain filesystem paths, opened in place
//
// owned reports whether the returned path is a temp copy.
func (o *Orchestrator) fetchSource(ctx context.Context, ref string) (p, name string, owned bool, err error) {
	// strip an optional #page fragment
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		p, name, err = o.downloadS3ToTemp(ctx, ref)
		return p, name, true, err
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		p, name, err = o.downloadHTTPToTemp(ctx, ref)
		return p, name, true, err
	default:
		p = strings.TrimPrefix(ref, "file://")
		if _, err := os.Stat(p); err != nil {
			return "", "", false, err
		}
		return p, filepath.Base(p), false, nil
	}
}

func (o *Orchestrator) downloadHTTPToTemp(ctx context.Context, ref string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("http %d", resp.StatusCode)
	}

	name := "document.pdf"
	if u, err := url.Parse(ref); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}
	limit := int64(o.cfg.MaxUploadMB) << 20
	p, err := o.writeTemp(prefixHTTP, io.LimitReader(resp.Body, limit+1), limit)
	return p, name, err
}

func (o *Orchestrator) downloadS3ToTemp(ctx context.Context, ref string) (string, string, error) {
	if o.deps.S3 == nil {
		return "", "", errors.New("s3 storage not configured")
	}
	bucket, key, err := storage.ParseURL(ref)
	if err != nil {
		return "", "", err
	}

	f, err := o.createTemp(prefixS3)
	if err != nil {
		return "", "", err
	}
	meta, err := o.deps.S3.Download(ctx, bucket, key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", "", err
	}

	name := path.Base(key)
	if meta != nil && meta.OriginalName != "" {
		name = meta.OriginalName
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("file", filepath.Base(f.Name())).Msg("downloaded s3 pdf to temp")
	return f.Name(), name, nil
}

// saveUpload stores the multipart field "file" in the upload directory.
func (o *Orchestrator) saveUpload(r *http.Request) (string, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", "", err
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("missing file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(hdr.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload.pdf"
	}
	p, err := o.writeTemp(prefixUpload, file, 0)
	return p, name, err
}

// writeTemp copies r into a new temp file. A positive limit rejects bodies
// longer than limit bytes.
func (o *Orchestrator) writeTemp(prefix string, r io.Reader, limit int64) (string, error) {
	f, err := o.createTemp(prefix)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("file exceeds %d MB", limit>>20)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// createTemp keeps a .pdf extension for tools that sniff by name.
func (o *Orchestrator) createTemp(prefix string) (*os.File, error) {
	dir := o.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return os.CreateTemp(dir, prefix+"*.pdf")
}
