package main

import (
	"math"
	"sort"
	"strings"
)

// FindAnchors scans one page's tokens for receipt title anchors. A token
// matching the anchor word only counts when the phrase rebuilt from its
// same-line neighbours contains every required part, which rejects stray
// occurrences of the word inside beneficiary names or concepts.
func FindAnchors(page PageTokens, tmpl TemplateProfile) []ReceiptAnchor {
	var anchors []ReceiptAnchor

	for i, tok := range page.Tokens {
		if !strings.EqualFold(tok.Text, tmpl.AnchorWord) {
			continue
		}

		phrase := joinSameLine(page.Tokens, i, tmpl)
		if !containsAllParts(phrase, tmpl.PhraseParts) {
			continue
		}

		x := tok.X0 - tmpl.LeftOffset
		if x < 0 {
			x = 0
		}

		anchors = append(anchors, ReceiptAnchor{
			Page: page.Page,
			X:    x,
			Y:    tok.Y0,
		})
	}

	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Y < anchors[j].Y })
	return anchors
}

// joinSameLine joins the anchor token with up to PhraseWindow following
// tokens that sit on the same visual line.
func joinSameLine(tokens []PositionedToken, start int, tmpl TemplateProfile) string {
	base := tokens[start]
	parts := []string{base.Text}

	end := start + tmpl.PhraseWindow
	if end >= len(tokens) {
		end = len(tokens) - 1
	}
	for j := start + 1; j <= end; j++ {
		if math.Abs(tokens[j].Y0-base.Y0) <= tmpl.LineTolerance {
			parts = append(parts, tokens[j].Text)
		}
	}

	return strings.Join(parts, " ")
}

func containsAllParts(phrase string, parts []string) bool {
	lower := strings.ToLower(phrase)
	for _, part := range parts {
		if !strings.Contains(lower, strings.ToLower(part)) {
			return false
		}
	}
	return true
}

// ComputeRegions turns a page's anchors into receipt regions. Each region
// extends down to the next anchor on the page, or by the template's default
// height for the last one, never past the bottom of the page. Regions of
// adjacent anchors therefore cannot overlap.
func ComputeRegions(anchors []ReceiptAnchor, tmpl TemplateProfile, pageHeight float64) []ReceiptRegion {
	sorted := make([]ReceiptAnchor, len(anchors))
	copy(sorted, anchors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	regions := make([]ReceiptRegion, 0, len(sorted))
	for i, anchor := range sorted {
		height := tmpl.DefaultHeight
		if i+1 < len(sorted) {
			height = sorted[i+1].Y - anchor.Y
		}
		if remaining := pageHeight - anchor.Y; height > remaining {
			height = remaining
		}
		if height <= 0 {
			log.Warnf("Dropping degenerate region at page %d y=%.1f", anchor.Page, anchor.Y)
			continue
		}

		regions = append(regions, ReceiptRegion{
			Page:   anchor.Page,
			X:      anchor.X,
			Y:      anchor.Y,
			Width:  tmpl.PageWidth,
			Height: height,
		})
	}

	return regions
}

// RegionText concatenates, in reading order, the text of every token whose
// top edge falls inside the region's vertical extent.
func RegionText(page PageTokens, region ReceiptRegion) string {
	var parts []string
	for _, tok := range page.Tokens {
		if tok.Y0 >= region.Y && tok.Y0 < region.Y+region.Height {
			parts = append(parts, tok.Text)
		}
	}
	return strings.Join(parts, " ")
}
