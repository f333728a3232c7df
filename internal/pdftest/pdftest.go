// Package pdftest checks whether a PDF carries a usable text layer. Caption
// detection depends on it: scanned documents have no text blocks, so
// automatic extraction would find no anchors.
package pdftest

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"time"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics provides detailed information about the text-layer check.
type Diagnostics struct {
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

// maxSample is the number of pages sampled from long documents.
const maxSample = 5

var whitespaceRegex = regexp.MustCompile(`\s+`)

// TextSource yields the plain text of a page.
type TextSource interface {
	PageCount() int
	PageText(ctx context.Context, index int) (string, error)
}

// Probe samples pages of src and counts non-whitespace runes until threshold
// is reached. If threshold <= 0, DefaultThreshold is used. Per-page failures
// are recorded in the probes and do not fail the check.
func Probe(ctx context.Context, src TextSource, threshold int) (*Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	start := time.Now()
	total := src.PageCount()
	diag := &Diagnostics{
		TotalPages:   total,
		SampledPages: sampleIndices(total, rand.New(rand.NewSource(time.Now().UnixNano()))),
		Threshold:    threshold,
	}

	for _, idx := range diag.SampledPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		probe := PageProbe{PageIndex: idx}
		text, err := src.PageText(ctx, idx)
		if err != nil {
			probe.Err = err.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		probe.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}

	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag, nil
}

// sampleIndices returns every page of short documents. Longer ones are
// sampled at first, middle and last page plus random distinct pages up to
// maxSample, sorted.
func sampleIndices(total int, rnd *rand.Rand) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= maxSample {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	base := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	for len(base) < maxSample {
		base[rnd.Intn(total)] = struct{}{}
	}
	out := make([]int, 0, maxSample)
	for i := range base {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
