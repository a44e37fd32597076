package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"separador-recibos/internal/constants"
)

// fragmentLineTolerance groups raw text fragments into visual lines before
// word assembly. Tighter than the locator's same-line tolerance because
// fragments of one word share a baseline almost exactly.
const fragmentLineTolerance = 2.0

// wordGapFactor times the font size is the horizontal gap above which two
// adjacent fragments belong to different words.
const wordGapFactor = 0.3

// ExtractPageTokens reads the PDF at path and returns, per page, its text
// assembled into word tokens in reading order. Coordinates are normalized to
// a top-left origin so the locator and the rasterizer agree on Y direction.
func ExtractPageTokens(path string) ([]PageTokens, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	if numPages < 1 {
		return nil, fmt.Errorf("PDF %s contains no pages", path)
	}

	pages := make([]PageTokens, 0, numPages)
	for n := 1; n <= numPages; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			log.Warnf("Page %d of %s is empty, skipping", n, path)
			continue
		}

		width, height := pageSize(page)
		tokens := assembleWords(page.Content().Text, height)

		pages = append(pages, PageTokens{
			Page:   n,
			Width:  width,
			Height: height,
			Tokens: tokens,
		})
	}

	return pages, nil
}

// pageSize resolves the page's MediaBox, walking up the page tree since the
// attribute is inheritable. Falls back to the template's nominal A4 size.
func pageSize(page pdf.Page) (width, height float64) {
	v := page.V
	for !v.IsNull() {
		if mb := v.Key("MediaBox"); !mb.IsNull() && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return constants.TemplatePageWidth, constants.TemplatePageHeight
}

// assembleWords groups raw content-stream fragments into word tokens.
// Fragments arrive in stream order with bottom-left origin; the result is
// sorted top-to-bottom, left-to-right with top-left origin coordinates.
func assembleWords(fragments []pdf.Text, pageHeight float64) []PositionedToken {
	lines := groupIntoLines(fragments)

	var tokens []PositionedToken
	for _, line := range lines {
		// Stable so fragments sharing an X coordinate keep stream order.
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })

		var current []pdf.Text
		flush := func() {
			if tok, ok := mergeFragments(current, pageHeight); ok {
				tokens = append(tokens, tok)
			}
			current = nil
		}

		for _, frag := range line {
			// A space glyph ends the word regardless of how tight the
			// surrounding advance widths are.
			if strings.TrimSpace(frag.S) == "" {
				flush()
				continue
			}
			if len(current) > 0 {
				prev := current[len(current)-1]
				gap := frag.X - (prev.X + prev.W)
				maxGap := wordGapFactor * math.Max(prev.FontSize, 1)
				if gap > maxGap {
					flush()
				}
			}
			current = append(current, frag)
		}
		flush()
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		if math.Abs(tokens[i].Y0-tokens[j].Y0) > fragmentLineTolerance {
			return tokens[i].Y0 < tokens[j].Y0
		}
		return tokens[i].X0 < tokens[j].X0
	})

	return tokens
}

// groupIntoLines buckets fragments by baseline Y within a small tolerance.
func groupIntoLines(fragments []pdf.Text) [][]pdf.Text {
	type lineBucket struct {
		y     float64
		frags []pdf.Text
	}

	var buckets []lineBucket
	for _, frag := range fragments {
		if frag.S == "" {
			continue
		}
		placed := false
		for i := range buckets {
			if math.Abs(buckets[i].y-frag.Y) < fragmentLineTolerance {
				buckets[i].frags = append(buckets[i].frags, frag)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, lineBucket{y: frag.Y, frags: []pdf.Text{frag}})
		}
	}

	lines := make([][]pdf.Text, len(buckets))
	for i, b := range buckets {
		lines[i] = b.frags
	}
	return lines
}

// mergeFragments joins a run of same-word fragments into one token,
// converting the baseline-anchored box to top-left origin.
func mergeFragments(fragments []pdf.Text, pageHeight float64) (PositionedToken, bool) {
	if len(fragments) == 0 {
		return PositionedToken{}, false
	}

	text := ""
	fontSize := 0.0
	for _, frag := range fragments {
		text += frag.S
		if frag.FontSize > fontSize {
			fontSize = frag.FontSize
		}
	}
	if text == "" {
		return PositionedToken{}, false
	}

	first := fragments[0]
	last := fragments[len(fragments)-1]

	return PositionedToken{
		Text: text,
		X0:   first.X,
		Y0:   pageHeight - first.Y - fontSize,
		X1:   last.X + last.W,
		Y1:   pageHeight - first.Y,
	}, true
}
