// Package export bundles session figures for download: a ZIP of PNGs or a
// PDF slide deck with one captioned figure per slide.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/local/figcrop/internal/figure"
)

// ArchiveName is the download name of the PNG bundle.
const ArchiveName = "manual_images.zip"

// ErrNoFigures is returned when there is nothing to export.
var ErrNoFigures = errors.New("no figures to export")

// EntryName names the i-th (0-based) figure inside the archive. The index
// prefix keeps entries unique when captions repeat.
func EntryName(i int, f *figure.ExtractedFigure) string {
	return fmt.Sprintf("%d_%s.png", i+1, f.Name)
}

// WriteArchive writes figs as a deflated ZIP in session order.
func WriteArchive(w io.Writer, figs []*figure.ExtractedFigure) error {
	if len(figs) == 0 {
		return ErrNoFigures
	}
	zw := zip.NewWriter(w)
	for i, f := range figs {
		hdr := &zip.FileHeader{Name: EntryName(i, f), Method: zip.Deflate}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create zip entry %d: %w", i+1, err)
		}
		if _, err := fw.Write(f.PNG); err != nil {
			return fmt.Errorf("write zip entry %d: %w", i+1, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
