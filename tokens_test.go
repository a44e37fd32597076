package main

import (
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleWordsMergesFragmentsOfOneWord(t *testing.T) {
	fragments := []pdf.Text{
		{S: "Reci", X: 100, Y: 742, W: 20, FontSize: 10},
		{S: "bo", X: 120.5, Y: 742, W: 10, FontSize: 10},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 1)
	assert.Equal(t, "Recibo", tokens[0].Text)
	assert.InDelta(t, 100, tokens[0].X0, 0.01)
	assert.InDelta(t, 130.5, tokens[0].X1, 0.01)
}

func TestAssembleWordsSplitsOnWordGap(t *testing.T) {
	fragments := []pdf.Text{
		{S: "Recibo", X: 100, Y: 742, W: 30, FontSize: 10},
		{S: "individual", X: 140, Y: 742, W: 50, FontSize: 10},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 2)
	assert.Equal(t, "Recibo", tokens[0].Text)
	assert.Equal(t, "individual", tokens[1].Text)
}

func TestAssembleWordsSplitsOnSpaceGlyph(t *testing.T) {
	// The space advance in a proportional font can be narrower than the
	// word-gap threshold; the glyph itself still separates the words.
	fragments := []pdf.Text{
		{S: "Recibo", X: 100, Y: 742, W: 30, FontSize: 10},
		{S: " ", X: 130, Y: 742, W: 2.8, FontSize: 10},
		{S: "individual", X: 132.8, Y: 742, W: 50, FontSize: 10},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 2)
	assert.Equal(t, "Recibo", tokens[0].Text)
	assert.Equal(t, "individual", tokens[1].Text)
}

func TestAssembleWordsKeepsStreamOrderWithoutAdvanceWidths(t *testing.T) {
	// Fonts without a widths table leave every fragment at the same X.
	// Stream order is the reading order then and must be preserved.
	fragments := []pdf.Text{
		{S: "Recibo", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: " ", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: "individual", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: " ", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: "de", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: " ", X: 90, Y: 742, W: 0, FontSize: 12},
		{S: "pagos", X: 90, Y: 742, W: 0, FontSize: 12},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 4)
	assert.Equal(t, "Recibo", tokens[0].Text)
	assert.Equal(t, "individual", tokens[1].Text)
	assert.Equal(t, "de", tokens[2].Text)
	assert.Equal(t, "pagos", tokens[3].Text)
}

func TestAssembleWordsConvertsToTopLeftOrigin(t *testing.T) {
	fragments := []pdf.Text{
		{S: "Recibo", X: 100, Y: 742, W: 30, FontSize: 10},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 1)
	// Baseline at Y=742 with font size 10 on an 842pt page sits 90pt from
	// the top.
	assert.InDelta(t, 90, tokens[0].Y0, 0.01)
	assert.InDelta(t, 100, tokens[0].Y1, 0.01)
}

func TestAssembleWordsOrdersTokensTopDownLeftRight(t *testing.T) {
	fragments := []pdf.Text{
		{S: "lower", X: 100, Y: 500, W: 30, FontSize: 10},
		{S: "right", X: 300, Y: 742, W: 30, FontSize: 10},
		{S: "left", X: 100, Y: 742, W: 20, FontSize: 10},
	}

	tokens := assembleWords(fragments, 842)

	require.Len(t, tokens, 3)
	assert.Equal(t, "left", tokens[0].Text)
	assert.Equal(t, "right", tokens[1].Text)
	assert.Equal(t, "lower", tokens[2].Text)
}

func TestGroupIntoLinesSkipsEmptyFragments(t *testing.T) {
	fragments := []pdf.Text{
		{S: "", X: 100, Y: 742},
		{S: "pagos", X: 100, Y: 742, W: 25, FontSize: 10},
	}

	lines := groupIntoLines(fragments)

	require.Len(t, lines, 1)
	require.Len(t, lines[0], 1)
	assert.Equal(t, "pagos", lines[0][0].S)
}

func TestGroupIntoLinesSeparatesDistantBaselines(t *testing.T) {
	fragments := []pdf.Text{
		{S: "a", X: 100, Y: 742, W: 5, FontSize: 10},
		{S: "b", X: 100, Y: 741, W: 5, FontSize: 10},
		{S: "c", X: 100, Y: 700, W: 5, FontSize: 10},
	}

	lines := groupIntoLines(fragments)

	assert.Len(t, lines, 2)
}
