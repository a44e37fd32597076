package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"separador-recibos/internal/constants"
)

// QualityTier controls the rasterization scale and the storage encoding of
// extracted receipt images.
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// Scale returns the rasterization scale factor for the tier.
func (q QualityTier) Scale() int {
	switch q {
	case QualityLow:
		return 1
	case QualityMedium:
		return 2
	case QualityHigh:
		return 3
	default:
		return 2
	}
}

// Lossless reports whether images of this tier are stored without
// compression loss.
func (q QualityTier) Lossless() bool {
	return q == QualityHigh
}

// JPEGQuality returns the encoder quality factor for lossy tiers.
func (q QualityTier) JPEGQuality() int {
	if q == QualityLow {
		return 60
	}
	return 85
}

// ParseQualityTier maps a stored option value to a tier, defaulting to high
// like the original upload flow.
func ParseQualityTier(s string) QualityTier {
	switch QualityTier(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return QualityTier(s)
	default:
		return QualityHigh
	}
}

// SizeTier controls the target pixel dimensions of extracted receipt images.
type SizeTier string

const (
	SizeSmall  SizeTier = "small"
	SizeMedium SizeTier = "medium"
	SizeLarge  SizeTier = "large"
)

// TargetBox returns the pixel bounding box images of this tier are fitted
// into, aspect ratio preserved.
func (s SizeTier) TargetBox() (width, height int) {
	switch s {
	case SizeSmall:
		return 300, 400
	case SizeMedium:
		return 600, 800
	case SizeLarge:
		return 900, 1200
	default:
		return 900, 1200
	}
}

// ParseSizeTier maps a stored option value to a tier, defaulting to large.
func ParseSizeTier(s string) SizeTier {
	switch SizeTier(s) {
	case SizeSmall, SizeMedium, SizeLarge:
		return SizeTier(s)
	default:
		return SizeLarge
	}
}

// OutputFormat selects which PDF generator paths run for a job.
type OutputFormat string

const (
	FormatImages OutputFormat = "images"
	FormatText   OutputFormat = "text"
	FormatBoth   OutputFormat = "both"
)

// ParseOutputFormat maps a stored option value to a format, defaulting to
// the image-embedded document.
func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatImages, FormatText, FormatBoth:
		return OutputFormat(s)
	default:
		return FormatImages
	}
}

// ProcessOptions is the per-job configuration read from the job record.
// Options travel as an explicit struct so concurrent jobs with different
// settings never interfere.
type ProcessOptions struct {
	Quality        QualityTier
	Size           SizeTier
	Format         OutputFormat
	ExtractImages  bool
	GenerateReport bool
}

// TemplateProfile carries the layout constants of one receipt template.
// Only the bank's current template ships as a profile today, but a variant
// means constructing a new profile, not editing call sites.
type TemplateProfile struct {
	// AnchorWord is the first word of the receipt title.
	AnchorWord string
	// PhraseParts must all appear in the joined same-line phrase following
	// the anchor word for the match to count.
	PhraseParts []string
	// LineTolerance is the Y distance within which tokens share a line.
	LineTolerance float64
	// PhraseWindow is how many following tokens are joined for the check.
	PhraseWindow int
	// LeftOffset shifts the anchor X to the receipt's left border.
	LeftOffset float64
	// PageWidth is the nominal template page width.
	PageWidth float64
	// DefaultHeight bounds the last receipt on a page.
	DefaultHeight float64
}

// DefaultTemplateProfile returns the profile of the known bank template.
func DefaultTemplateProfile() TemplateProfile {
	return TemplateProfile{
		AnchorWord:    "recibo",
		PhraseParts:   []string{"individual", "pagos"},
		LineTolerance: constants.SameLineTolerance,
		PhraseWindow:  constants.PhraseWindow,
		LeftOffset:    constants.AnchorLeftOffset,
		PageWidth:     constants.TemplatePageWidth,
		DefaultHeight: constants.DefaultReceiptHeight,
	}
}

// PositionedToken is one lexical unit of page text with its bounding box.
// Coordinates are top-left origin; Y0 is the top edge, Y1 the bottom edge.
type PositionedToken struct {
	Text string
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
}

// PageTokens is the ordered token stream of one page.
type PageTokens struct {
	Page   int // 1-based
	Width  float64
	Height float64
	Tokens []PositionedToken
}

// ReceiptAnchor is the detected top-left origin of one receipt, after
// horizontal offset correction.
type ReceiptAnchor struct {
	Page int
	X    float64
	Y    float64
}

// ReceiptRegion is the rectangular area of a page belonging to one receipt.
type ReceiptRegion struct {
	Page   int
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ParsedReceipt is the structured record extracted from one region's text.
// Fields stay zero-valued when the template text did not match; absence of
// data is a normal per-receipt outcome.
type ParsedReceipt struct {
	Sequence      int
	Region        ReceiptRegion
	Beneficiary   string
	Value         decimal.Decimal
	Entity        string
	Account       string
	Reference     string
	AppliedOn     *time.Time
	Concept       string
	PaymentStatus string
	RawText       string
}

// ReceiptImage is the raster payload extracted for one receipt region.
// Placeholder images are tagged with the failure reason instead of the
// extraction error being swallowed.
type ReceiptImage struct {
	Data        []byte
	Format      string // "png" or "jpeg"
	Width       int
	Height      int
	Region      ReceiptRegion
	Placeholder bool
	FailReason  string
}

// FileName returns the artifact name for the receipt's image file.
func (img ReceiptImage) FileName(sequence int) string {
	ext := "png"
	if img.Format == "jpeg" {
		ext = "jpg"
	}
	if img.Placeholder {
		return fmt.Sprintf("recibo_error_%d.%s", sequence, ext)
	}
	return fmt.Sprintf("recibo_%d.%s", sequence, ext)
}
