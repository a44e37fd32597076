package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxUploadBytes caps uploaded PDFs at 50 MiB.
const maxUploadBytes = 50 << 20

// uploadJobHandler accepts a multipart PDF upload plus processing options,
// stores the original, creates the job record and enqueues it.
func (app *App) uploadJobHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("reading upload: %v", err)})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("reading upload: %v", err)})
		return
	}

	if kind := mimetype.Detect(data); !kind.Is("application/pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("expected a PDF upload, got %s", kind.String())})
		return
	}

	storedName, err := app.Storage.SaveOriginal(fileHeader.Filename, bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Error("Failed to store uploaded PDF")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	job := &ReceiptJob{
		ID:             uuid.New().String(),
		OriginalFile:   storedName,
		Status:         StatusPending,
		ImageQuality:   string(ParseQualityTier(c.PostForm("image_quality"))),
		ImageSize:      string(ParseSizeTier(c.PostForm("image_size"))),
		OutputFormat:   string(ParseOutputFormat(c.PostForm("output_format"))),
		ExtractImages:  postFormBool(c, "extract_images", true),
		GenerateReport: postFormBool(c, "generate_report", true),
	}

	if err := InsertReceiptJob(app.Database, job); err != nil {
		log.WithError(err).Error("Failed to create job record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	if err := enqueueJob(job.ID); err != nil {
		_ = MarkJobStatus(app.Database, job.ID, StatusError, err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	log.WithField("job_id", job.ID).Info("Job accepted")
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

func postFormBool(c *gin.Context, field string, fallback bool) bool {
	value := c.PostForm(field)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// jobStatusHandler reports a job's state for polling clients.
func (app *App) jobStatusHandler(c *gin.Context) {
	job, ok := app.lookupJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":         job.ID,
		"status":         job.Status,
		"total_receipts": job.TotalReceipts,
		"error_message":  job.ErrorMessage,
		"progress":       jobProgress(job.Status),
	})
}

// jobProgress maps a status to a coarse completion percentage for UIs.
func jobProgress(status string) int {
	switch status {
	case StatusPending:
		return 10
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// jobReceiptsHandler lists a job's detected receipts in detection order.
func (app *App) jobReceiptsHandler(c *gin.Context) {
	job, ok := app.lookupJob(c)
	if !ok {
		return
	}

	receipts, err := GetJobReceipts(app.Database, job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "receipts": receipts})
}

// downloadResultHandler serves one of a job's generated PDF artifacts,
// selected by the kind route parameter: result, text or report.
func (app *App) downloadResultHandler(c *gin.Context) {
	job, ok := app.lookupJob(c)
	if !ok {
		return
	}

	var name string
	switch c.Param("kind") {
	case "result":
		name = job.ResultFile
	case "text":
		name = job.TextResultFile
	case "report":
		name = job.ReportFile
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown artifact kind"})
		return
	}

	if name == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not available"})
		return
	}

	c.FileAttachment(app.Storage.ResultPath(name), name)
}

// receiptImageHandler serves one receipt's extracted image file.
func (app *App) receiptImageHandler(c *gin.Context) {
	receipt, ok := app.lookupReceipt(c)
	if !ok {
		return
	}

	if receipt.ImageFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not available"})
		return
	}

	c.FileAttachment(app.Storage.ImagePath(receipt.ImageFile), receipt.ImageFile)
}

// validateReceiptHandler toggles the human-review flag on a receipt.
func (app *App) validateReceiptHandler(c *gin.Context) {
	receipt, ok := app.lookupReceipt(c)
	if !ok {
		return
	}

	var body struct {
		Validated bool `json:"validated"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := SetReceiptValidated(app.Database, receipt.ID, body.Validated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": receipt.ID, "validated": body.Validated})
}

// receiptExportRow is the CSV projection of a detected receipt.
type receiptExportRow struct {
	Sequence    int    `csv:"numero"`
	Beneficiary string `csv:"beneficiario"`
	Value       string `csv:"valor"`
	Entity      string `csv:"entidad"`
	Account     string `csv:"cuenta"`
	Reference   string `csv:"referencia"`
	AppliedOn   string `csv:"fecha"`
	Concept     string `csv:"concepto"`
	Status      string `csv:"estado"`
	Validated   bool   `csv:"validado"`
}

// exportReceiptsHandler streams every stored receipt as CSV.
func (app *App) exportReceiptsHandler(c *gin.Context) {
	receipts, err := ListAllReceipts(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows := make([]receiptExportRow, len(receipts))
	for i, r := range receipts {
		date := ""
		if r.AppliedOn != nil {
			date = r.AppliedOn.Format("2006-01-02")
		}
		rows[i] = receiptExportRow{
			Sequence:    r.Sequence,
			Beneficiary: r.Beneficiary,
			Value:       r.Value.StringFixed(2),
			Entity:      r.Entity,
			Account:     r.Account,
			Reference:   r.Reference,
			AppliedOn:   date,
			Concept:     r.Concept,
			Status:      r.PaymentStatus,
			Validated:   r.Validated,
		}
	}

	csvData, err := gocsv.MarshalString(&rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="recibos_export.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(csvData))
}

func (app *App) lookupJob(c *gin.Context) (*ReceiptJob, bool) {
	job, err := GetReceiptJob(app.Database, c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return job, true
}

func (app *App) lookupReceipt(c *gin.Context) (*DetectedReceipt, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
		return nil, false
	}

	receipt, err := GetDetectedReceipt(app.Database, uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return receipt, true
}
