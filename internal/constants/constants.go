package constants

// Geometry of the "Recibo individual de pagos" bank statement template,
// in PDF points. The template prints up to four receipts per A4 page.
const (
	// TemplatePageWidth is the nominal width of the source template page.
	TemplatePageWidth = 595.0

	// TemplatePageHeight is the nominal A4 height of the source template page,
	// used when a page carries no resolvable MediaBox.
	TemplatePageHeight = 842.0

	// DefaultReceiptHeight bounds the last receipt on a page, where there is
	// no following anchor to measure against. Derived from the four-per-page
	// layout of the known template.
	DefaultReceiptHeight = 225.0

	// AnchorLeftOffset is subtracted from the anchor title's X coordinate to
	// reach the receipt's printed left border. The title is indented relative
	// to the frame; the value is specific to this template's dimensions and
	// must be re-measured for template variants.
	AnchorLeftOffset = 18.0

	// SameLineTolerance is the maximum Y distance, in points, between two
	// tokens still considered to sit on the same visual line.
	SameLineTolerance = 5.0

	// PhraseWindow is how many tokens following "Recibo" are inspected when
	// reconstructing the anchor title phrase.
	PhraseWindow = 10
)
