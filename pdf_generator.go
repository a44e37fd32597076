package main

import (
	"bytes"
	"fmt"
	"sort"

	"codeberg.org/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const (
	pageMargin  = 72.0 // 1 inch, in points
	imageMaxH   = 324.0
	fieldUnset  = "N/A"
	titleFormat = "Recibo #%d"
)

// GenerateReceiptPDF builds the separated document: one page per receipt
// with a title, the labeled field block and the extracted image. A receipt
// whose image is missing or fails to embed gets an inline notice on its page
// instead of aborting the document.
func GenerateReceiptPDF(receipts []ParsedReceipt, images []ReceiptImage) ([]byte, error) {
	doc := newReceiptDoc()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for i, receipt := range receipts {
		doc.AddPage()
		writeReceiptHeader(doc, receipt)
		writeReceiptFields(doc, tr, receipt)

		doc.Ln(18)
		var img *ReceiptImage
		if i < len(images) && len(images[i].Data) > 0 {
			img = &images[i]
		}
		if img == nil {
			writeNotice(doc, tr, "Imagen no disponible")
			continue
		}
		if err := embedReceiptImage(doc, i, img); err != nil {
			log.WithField("receipt", receipt.Sequence).WithError(err).Error("Failed to embed receipt image")
			// fpdf errors are sticky and would turn every later call,
			// including the notice itself, into a no-op.
			doc.ClearError()
			writeNotice(doc, tr, fmt.Sprintf("Error cargando imagen: %v", err))
		}
	}

	return outputPDF(doc)
}

// GenerateTextPDF is the text-only fallback: the same field content without
// images, flowing multiple receipts per page.
func GenerateTextPDF(receipts []ParsedReceipt) ([]byte, error) {
	doc := newReceiptDoc()
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 24, "Recibos Separados", "", 1, "C", false, 0, "")
	doc.Ln(10)

	for _, receipt := range receipts {
		doc.SetFont("Helvetica", "B", 12)
		doc.CellFormat(0, 16, fmt.Sprintf(titleFormat, receipt.Sequence), "", 1, "L", false, 0, "")

		doc.SetFont("Helvetica", "", 10)
		for _, line := range fieldLines(receipt) {
			doc.CellFormat(0, 13, tr(line.label+": "+line.value), "", 1, "L", false, 0, "")
		}
		doc.Ln(12)
	}

	return outputPDF(doc)
}

// Statistics aggregates the detected receipts for the report.
type Statistics struct {
	Total        int
	WithValue    int
	TotalValue   decimal.Decimal
	AverageValue decimal.Decimal
	Entities     []string
}

// computeStatistics derives the report figures. Averages are taken over
// receipts that carry a value, matching how the review table counts them.
func computeStatistics(receipts []ParsedReceipt) Statistics {
	stats := Statistics{
		Total:        len(receipts),
		TotalValue:   decimal.Zero,
		AverageValue: decimal.Zero,
	}

	seen := make(map[string]bool)
	for _, receipt := range receipts {
		if !receipt.Value.IsZero() {
			stats.WithValue++
			stats.TotalValue = stats.TotalValue.Add(receipt.Value)
		}
		if receipt.Entity != "" && !seen[receipt.Entity] {
			seen[receipt.Entity] = true
			stats.Entities = append(stats.Entities, receipt.Entity)
		}
	}

	if stats.WithValue > 0 {
		stats.AverageValue = stats.TotalValue.DivRound(decimal.NewFromInt(int64(stats.WithValue)), 2)
	}
	sort.Strings(stats.Entities)

	return stats
}

// GenerateStatisticsReport renders the aggregate report PDF.
func GenerateStatisticsReport(receipts []ParsedReceipt) ([]byte, error) {
	stats := computeStatistics(receipts)

	doc := newReceiptDoc()
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 24, tr("Reporte de Estadísticas"), "", 1, "C", false, 0, "")
	doc.Ln(10)

	doc.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Total de Recibos: %d", stats.Total),
		fmt.Sprintf("Valor Total: $%s", stats.TotalValue.StringFixed(2)),
		fmt.Sprintf("Valor Promedio: $%s", stats.AverageValue.StringFixed(2)),
		fmt.Sprintf("Entidades Bancarias: %d", len(stats.Entities)),
		"",
		"Entidades encontradas:",
	}
	for _, line := range lines {
		doc.CellFormat(0, 16, line, "", 1, "L", false, 0, "")
	}

	for _, entity := range stats.Entities {
		doc.CellFormat(0, 14, tr("- "+entity), "", 1, "L", false, 0, "")
	}

	return outputPDF(doc)
}

func newReceiptDoc() *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetTitle("Recibos Separados", true)
	doc.SetCreator("separador-recibos", true)
	return doc
}

func writeReceiptHeader(doc *fpdf.Fpdf, receipt ParsedReceipt) {
	doc.SetFont("Helvetica", "B", 18)
	doc.SetTextColor(0, 128, 0)
	doc.CellFormat(0, 26, fmt.Sprintf(titleFormat, receipt.Sequence), "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.Ln(8)
}

type fieldLine struct {
	label string
	value string
}

func fieldLines(receipt ParsedReceipt) []fieldLine {
	value := fieldUnset
	if !receipt.Value.IsZero() {
		value = "$" + receipt.Value.StringFixed(2)
	}
	date := fieldUnset
	if receipt.AppliedOn != nil {
		date = receipt.AppliedOn.Format("2006-01-02")
	}

	return []fieldLine{
		{"Beneficiario", orUnset(receipt.Beneficiary)},
		{"Valor", value},
		{"Entidad", orUnset(receipt.Entity)},
		{"Cuenta", orUnset(receipt.Account)},
		{"Referencia", orUnset(receipt.Reference)},
		{"Fecha", date},
		{"Estado", orUnset(receipt.PaymentStatus)},
		{"Concepto", orUnset(receipt.Concept)},
	}
}

func orUnset(s string) string {
	if s == "" {
		return fieldUnset
	}
	return s
}

func writeReceiptFields(doc *fpdf.Fpdf, tr func(string) string, receipt ParsedReceipt) {
	for _, line := range fieldLines(receipt) {
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(90, 15, tr(line.label+":"), "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, 15, tr(line.value), "", 1, "L", false, 0, "")
	}
}

func writeNotice(doc *fpdf.Fpdf, tr func(string) string, text string) {
	doc.SetFont("Helvetica", "I", 11)
	doc.CellFormat(0, 15, tr(text), "", 1, "L", false, 0, "")
}

// embedReceiptImage registers the raster payload and places it scaled to fit
// the content width and the reserved image height, aspect ratio preserved.
func embedReceiptImage(doc *fpdf.Fpdf, index int, img *ReceiptImage) error {
	imageType := "PNG"
	if img.Format == "jpeg" {
		imageType = "JPG"
	}

	name := fmt.Sprintf("receipt-%d", index)
	options := fpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	info := doc.RegisterImageOptionsReader(name, options, bytes.NewReader(img.Data))
	if err := doc.Error(); err != nil {
		return fmt.Errorf("registering image: %w", err)
	}

	pageW, _ := doc.GetPageSize()
	maxW := pageW - 2*pageMargin

	w := info.Width()
	h := info.Height()
	scale := maxW / w
	if s := imageMaxH / h; s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}

	x := pageMargin + (maxW-w*scale)/2
	doc.ImageOptions(name, x, doc.GetY(), w*scale, h*scale, false, options, 0, "")
	if err := doc.Error(); err != nil {
		return fmt.Errorf("placing image: %w", err)
	}

	return nil
}

func outputPDF(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}
