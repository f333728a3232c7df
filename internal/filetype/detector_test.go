package filetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func TestDetectBytes(t *testing.T) {
	d := New()

	info := d.DetectBytes([]byte(minimalPDF))
	assert.True(t, info.Supported)
	assert.Equal(t, PDFMIME, info.MIMEType)
	assert.Equal(t, ".pdf", info.Extension)

	info = d.DetectBytes([]byte("\x89PNG\r\n\x1a\n0000"))
	assert.False(t, info.Supported)
	assert.Equal(t, "image/png", info.MIMEType)
}

func TestRequirePDF(t *testing.T) {
	dir := t.TempDir()
	d := New()

	// the extension is ignored, only the content counts
	pdf := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(pdf, []byte(minimalPDF), 0o644))
	assert.NoError(t, d.RequirePDF(pdf))

	txt := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(txt, []byte("just some text"), 0o644))
	assert.ErrorIs(t, d.RequirePDF(txt), ErrUnsupported)

	assert.Error(t, d.RequirePDF(filepath.Join(dir, "missing.pdf")))
}
