package main

import (
	"context"
	"fmt"

	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

// detectedReceiptData pairs one receipt's parsed record with its region
// before persistence.
type detectedReceiptData struct {
	Parsed ParsedReceipt
	Region ReceiptRegion
}

// ProcessReceiptJob runs the full pipeline for one job: validate the input,
// detect receipts, extract images, persist records and artifacts, and update
// the job's status. A returned error means the job ended in ERROR state with
// the cause recorded on the job.
func (app *App) ProcessReceiptJob(ctx context.Context, jobID string) error {
	jobLogger := log.WithField("job_id", jobID)

	job, err := GetReceiptJob(app.Database, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if err := MarkJobStatus(app.Database, jobID, StatusProcessing, ""); err != nil {
		return fmt.Errorf("marking job %s processing: %w", jobID, err)
	}

	runErr := app.runPipeline(ctx, jobLogger, job)
	if runErr != nil {
		jobLogger.WithError(runErr).Error("Receipt processing failed")
		if err := MarkJobStatus(app.Database, jobID, StatusError, runErr.Error()); err != nil {
			jobLogger.WithError(err).Error("Failed to record job error state")
		}
		return runErr
	}

	return nil
}

func (app *App) runPipeline(ctx context.Context, jobLogger *logrus.Entry, job *ReceiptJob) error {
	options := job.Options()
	jobLogger.WithFields(logrus.Fields{
		"quality": options.Quality,
		"size":    options.Size,
		"format":  options.Format,
	}).Info("Starting receipt processing")

	pdfPath := app.Storage.OriginalPath(job.OriginalFile)
	if err := pdfcpuapi.ValidateFile(pdfPath, nil); err != nil {
		return fmt.Errorf("uploaded file is not a valid PDF: %w", err)
	}

	pages, err := ExtractPageTokens(pdfPath)
	if err != nil {
		return fmt.Errorf("extracting page text: %w", err)
	}

	receipts := detectReceipts(jobLogger, pages, app.Template)
	if len(receipts) == 0 {
		return fmt.Errorf("no receipts detected in the PDF")
	}
	jobLogger.Infof("Detected %d receipts", len(receipts))

	images := app.extractImages(ctx, jobLogger, pdfPath, receipts, options)

	if err := app.persistReceipts(jobLogger, job, receipts, images); err != nil {
		return err
	}

	if err := app.generateArtifacts(jobLogger, job, receipts, images, options); err != nil {
		return err
	}

	job.TotalReceipts = len(receipts)
	job.Status = StatusCompleted
	job.ErrorMessage = ""
	if err := UpdateReceiptJob(app.Database, job); err != nil {
		return fmt.Errorf("recording job completion: %w", err)
	}

	jobLogger.Infof("Processing completed with %d receipts", len(receipts))
	return nil
}

// detectReceipts runs anchor detection, region computation and field parsing
// over every page, numbering receipts in page-major, top-down order.
func detectReceipts(jobLogger *logrus.Entry, pages []PageTokens, tmpl TemplateProfile) []detectedReceiptData {
	var receipts []detectedReceiptData

	for _, page := range pages {
		anchors := FindAnchors(page, tmpl)
		if len(anchors) == 0 {
			continue
		}
		regions := ComputeRegions(anchors, tmpl, page.Height)

		for _, region := range regions {
			sequence := len(receipts) + 1
			parsed, err := ParseReceiptText(RegionText(page, region))
			if err != nil {
				// Parse failure is per-receipt: keep the record with
				// empty fields and carry on.
				jobLogger.WithField("sequence", sequence).WithError(err).Warn("Receipt text could not be parsed")
				parsed = ParsedReceipt{}
			}
			parsed.Sequence = sequence
			parsed.Region = region

			receipts = append(receipts, detectedReceiptData{Parsed: parsed, Region: region})
		}
	}

	return receipts
}

// extractImages rasterizes every receipt region when image extraction is
// enabled. Extractor failures degrade to placeholders per receipt; only a
// failure to open the document at all disables images for the run.
func (app *App) extractImages(ctx context.Context, jobLogger *logrus.Entry, pdfPath string, receipts []detectedReceiptData, options ProcessOptions) []ReceiptImage {
	if !options.ExtractImages {
		jobLogger.Info("Image extraction disabled for this job")
		return nil
	}

	extractor, err := NewImageExtractor(pdfPath)
	if err != nil {
		jobLogger.WithError(err).Error("Could not open PDF for rasterization, continuing without images")
		return nil
	}
	defer extractor.Close()

	regions := make([]ReceiptRegion, len(receipts))
	for i, r := range receipts {
		regions[i] = r.Region
	}

	jobLogger.WithField("count", len(regions)).Info("Extracting receipt images")
	return extractor.ExtractAll(ctx, regions, options.Quality, options.Size)
}

// persistReceipts writes one DetectedReceipt row per receipt plus its image
// file. Persistence failures for single receipts are logged and skipped so
// the remaining receipts still land.
func (app *App) persistReceipts(jobLogger *logrus.Entry, job *ReceiptJob, receipts []detectedReceiptData, images []ReceiptImage) error {
	stored := 0
	for i, data := range receipts {
		record := &DetectedReceipt{
			JobID:         job.ID,
			Sequence:      data.Parsed.Sequence,
			Page:          data.Region.Page,
			X:             data.Region.X,
			Y:             data.Region.Y,
			Width:         data.Region.Width,
			Height:        data.Region.Height,
			Beneficiary:   data.Parsed.Beneficiary,
			Value:         data.Parsed.Value,
			Entity:        data.Parsed.Entity,
			Account:       data.Parsed.Account,
			Reference:     data.Parsed.Reference,
			AppliedOn:     data.Parsed.AppliedOn,
			Concept:       data.Parsed.Concept,
			PaymentStatus: data.Parsed.PaymentStatus,
			RawText:       data.Parsed.RawText,
		}

		if i < len(images) && len(images[i].Data) > 0 {
			name, err := app.Storage.SaveImage(job.ID, images[i].FileName(record.Sequence), images[i].Data)
			if err != nil {
				jobLogger.WithField("sequence", record.Sequence).WithError(err).Warn("Failed to store receipt image")
			} else {
				record.ImageFile = name
			}
		}

		if err := InsertDetectedReceipt(app.Database, record); err != nil {
			jobLogger.WithField("sequence", record.Sequence).WithError(err).Error("Failed to store receipt record")
			continue
		}
		stored++
	}

	if stored == 0 {
		return fmt.Errorf("no receipt records could be stored")
	}
	return nil
}

// generateArtifacts builds the output PDFs per the job's format. When the
// image-embedded document fails, generation falls back to the text-only
// variant before the job is declared failed.
func (app *App) generateArtifacts(jobLogger *logrus.Entry, job *ReceiptJob, receipts []detectedReceiptData, images []ReceiptImage, options ProcessOptions) error {
	parsed := make([]ParsedReceipt, len(receipts))
	for i, r := range receipts {
		parsed[i] = r.Parsed
	}

	wantImages := options.Format == FormatImages || options.Format == FormatBoth
	wantText := options.Format == FormatText || options.Format == FormatBoth

	if wantImages {
		data, err := GenerateReceiptPDF(parsed, images)
		if err != nil {
			jobLogger.WithError(err).Warn("Image-embedded PDF generation failed, falling back to text-only")
			data, err = GenerateTextPDF(parsed)
			if err != nil {
				return fmt.Errorf("generating fallback text PDF: %w", err)
			}
		}
		name, err := app.Storage.SaveResult(fmt.Sprintf("recibos_separados_%s.pdf", job.ID), data)
		if err != nil {
			return fmt.Errorf("storing result PDF: %w", err)
		}
		job.ResultFile = name
	}

	if wantText {
		data, err := GenerateTextPDF(parsed)
		if err != nil {
			return fmt.Errorf("generating text PDF: %w", err)
		}
		name, err := app.Storage.SaveResult(fmt.Sprintf("recibos_separados_texto_%s.pdf", job.ID), data)
		if err != nil {
			return fmt.Errorf("storing text PDF: %w", err)
		}
		job.TextResultFile = name
		if job.ResultFile == "" {
			job.ResultFile = name
		}
	}

	if options.GenerateReport {
		data, err := GenerateStatisticsReport(parsed)
		if err != nil {
			// The report is auxiliary; its failure does not sink the job.
			jobLogger.WithError(err).Warn("Statistics report generation failed")
		} else {
			name, err := app.Storage.SaveResult(fmt.Sprintf("recibos_estadisticas_%s.pdf", job.ID), data)
			if err != nil {
				jobLogger.WithError(err).Warn("Failed to store statistics report")
			} else {
				job.ReportFile = name
			}
		}
	}

	return nil
}
