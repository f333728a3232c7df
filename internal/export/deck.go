package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"codeberg.org/go-pdf/fpdf"

	"github.com/local/figcrop/internal/figure"
)

// DeckName is the download name of the slide deck.
const DeckName = "figures.pdf"

// Ratio is a slide aspect ratio.
type Ratio string

const (
	// RatioPortrait is a 7.5 x 10 inch slide.
	RatioPortrait Ratio = "3:4"
	// RatioWide is a 13.33 x 7.5 inch slide.
	RatioWide Ratio = "16:9"
)

// ParseRatio accepts "3:4" and "16:9"; empty selects RatioPortrait.
func ParseRatio(s string) (Ratio, error) {
	switch Ratio(s) {
	case "", RatioPortrait:
		return RatioPortrait, nil
	case RatioWide:
		return RatioWide, nil
	}
	return "", fmt.Errorf("unknown slide ratio %q", s)
}

// size returns the slide dimensions in inches.
func (r Ratio) size() fpdf.SizeType {
	if r == RatioWide {
		return fpdf.SizeType{Wd: 13.33, Ht: 7.5}
	}
	return fpdf.SizeType{Wd: 7.5, Ht: 10}
}

// Slide layout in inches.
const (
	slideMargin    = 0.5
	captionReserve = 2.0
	captionGap     = 0.1
	captionLine    = 0.3
	captionPt      = 14
)

// DeckOptions configures WriteDeck.
type DeckOptions struct {
	Ratio Ratio
	// FontFile is a UTF-8 TrueType font for captions. Without it captions
	// use Helvetica and characters outside cp1252 are lost.
	FontFile string
}

// ErrNoDeckFont means no UTF-8 caption font was configured or found.
var ErrNoDeckFont = errors.New("no UTF-8 deck font")

// deckFontCandidates are TrueType fonts with CJK coverage commonly installed
// on Linux, macOS and Windows hosts.
var deckFontCandidates = []string{
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/truetype/noto/NotoSansSC-Regular.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
	`C:\Windows\Fonts\simhei.ttf`,
}

// FindDeckFont returns configured when it names a readable file. Without a
// configured font it returns the first installed candidate, or ErrNoDeckFont.
func FindDeckFont(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("deck font: %w", err)
		}
		return configured, nil
	}
	for _, p := range deckFontCandidates {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", ErrNoDeckFont
}

// WriteDeck renders one slide per figure: the image fitted into the slide
// minus margins and a caption band, centred, with its name below in bold.
func WriteDeck(w io.Writer, figs []*figure.ExtractedFigure, opts DeckOptions) error {
	if len(figs) == 0 {
		return ErrNoFigures
	}
	size := opts.Ratio.size()
	pdf := fpdf.New("P", "in", "", "")
	pdf.SetAutoPageBreak(false, 0)

	family, translate := "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
	if opts.FontFile != "" {
		family, translate = "caption", func(s string) string { return s }
		pdf.AddUTF8Font(family, "B", opts.FontFile)
	}

	for i, f := range figs {
		pdf.AddPageFormat("P", size)

		x, y, iw, ih := fitImage(size, f.Width, f.Height)
		name := fmt.Sprintf("fig%d", i)
		imgOpts := fpdf.ImageOptions{ReadDpi: false, ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(f.PNG))
		pdf.ImageOptions(name, x, y, iw, ih, false, imgOpts, 0, "")

		pdf.SetFont(family, "B", captionPt)
		pdf.SetXY(slideMargin, y+ih+captionGap)
		pdf.MultiCell(size.Wd-2*slideMargin, captionLine, translate(f.Name), "", "C", false)

		if err := pdf.Error(); err != nil {
			return fmt.Errorf("slide %d: %w", i+1, err)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate deck: %w", err)
	}
	return nil
}

// fitImage scales a w x h pixel image to the widest box that fits the slide
// width minus margins and the slide height minus the caption band. The box
// is centred horizontally and starts one margin from the top.
func fitImage(slide fpdf.SizeType, w, h int) (x, y, bw, bh float64) {
	availW := slide.Wd - 2*slideMargin
	availH := slide.Ht - captionReserve
	if w <= 0 || h <= 0 {
		return slideMargin, slideMargin, availW, availH
	}
	ratio := float64(w) / float64(h)
	bw, bh = availW, availW/ratio
	if bh > availH {
		bh = availH
		bw = bh * ratio
	}
	return (slide.Wd - bw) / 2, slideMargin, bw, bh
}
