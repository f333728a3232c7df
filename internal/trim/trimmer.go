// Package trim crops uniform background borders from rendered figures.
package trim

import (
	"errors"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
)

// ErrEmptyImage is reported for nil or zero-area input.
var ErrEmptyImage = errors.New("trim: empty image")

// Outcome tells the caller what Trim did.
type Outcome int

const (
	// Unchanged means no background border was found; Image is the input.
	Unchanged Outcome = iota
	// Trimmed means Image is a crop of the input.
	Trimmed
	// Failed means the input could not be analysed; Image is the input and
	// Err explains why.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Trimmed:
		return "trimmed"
	case Failed:
		return "failed"
	default:
		return "unchanged"
	}
}

// Reference selects the background colour the image is compared against.
type Reference int

const (
	// ReferenceWhite compares against pure white.
	ReferenceWhite Reference = iota
	// ReferenceCorner compares against the top-left pixel.
	ReferenceCorner
)

// ParseReference maps "corner" to ReferenceCorner and anything else to ReferenceWhite.
func ParseReference(s string) Reference {
	if s == "corner" {
		return ReferenceCorner
	}
	return ReferenceWhite
}

// Options controls the noise suppression applied to the difference image.
// Each channel difference d is mapped to (d+d)/Scale + Offset; pixels where
// every channel maps to <= 0 count as background.
type Options struct {
	Reference Reference
	Scale     float64
	Offset    float64
}

// DefaultOptions amplifies by 2.0 with a -100 bias against a white reference.
func DefaultOptions() Options {
	return Options{Reference: ReferenceWhite, Scale: 2.0, Offset: -100}
}

// Result is the outcome of Trim.
type Result struct {
	Image   image.Image
	Outcome Outcome
	// Bounds is the content rectangle in input coordinates when Trimmed.
	Bounds image.Rectangle
	Err    error
}

// Trim crops img to the smallest rectangle enclosing every pixel that
// differs noticeably from the background colour. A uniform image, or one
// whose content already touches every edge, is returned unchanged. With
// ReferenceWhite, Trim is idempotent.
func Trim(img image.Image, opts Options) Result {
	if img == nil || img.Bounds().Empty() {
		return Result{Image: img, Outcome: Failed, Err: ErrEmptyImage}
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}

	b := img.Bounds()
	var ref color.Color = color.White
	if opts.Reference == ReferenceCorner {
		ref = img.At(b.Min.X, b.Min.Y)
	}
	bg := imaging.New(b.Dx(), b.Dy(), ref)
	diff := blend.Difference(bg, imaging.Clone(img))

	box, ok := contentBox(diff, opts)
	if !ok || box.Eq(diff.Bounds()) {
		return Result{Image: img, Outcome: Unchanged}
	}
	box = box.Add(b.Min)
	return Result{Image: imaging.Crop(img, box), Outcome: Trimmed, Bounds: box}
}

// contentBox returns the bounding box of pixels whose amplified difference
// is positive in any colour channel.
func contentBox(diff *image.RGBA, opts Options) (image.Rectangle, bool) {
	b := diff.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := diff.Pix[(y-b.Min.Y)*diff.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			i := (x - b.Min.X) * 4
			if !visible(row[i], opts) && !visible(row[i+1], opts) && !visible(row[i+2], opts) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func visible(d uint8, opts Options) bool {
	return float64(d)*2/opts.Scale+opts.Offset > 0
}
