package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Job lifecycle states.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusError      = "ERROR"
)

// ReceiptJob is one uploaded PDF and its processing configuration and
// outcome. The pipeline reads the options from it and writes back totals,
// artifact names and the final status.
type ReceiptJob struct {
	ID             string `gorm:"primaryKey;size:36"`
	OriginalFile   string `gorm:"size:255;not null"`
	Status         string `gorm:"size:20;not null;default:PENDING"`
	ImageQuality   string `gorm:"size:10"`
	ImageSize      string `gorm:"size:10"`
	OutputFormat   string `gorm:"size:10"`
	ExtractImages  bool
	GenerateReport bool
	TotalReceipts  int
	ResultFile     string `gorm:"size:255"`
	TextResultFile string `gorm:"size:255"`
	ReportFile     string `gorm:"size:255"`
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Options converts the stored option columns into the pipeline's explicit
// configuration struct.
func (job *ReceiptJob) Options() ProcessOptions {
	return ProcessOptions{
		Quality:        ParseQualityTier(job.ImageQuality),
		Size:           ParseSizeTier(job.ImageSize),
		Format:         ParseOutputFormat(job.OutputFormat),
		ExtractImages:  job.ExtractImages,
		GenerateReport: job.GenerateReport,
	}
}

// DetectedReceipt is one receipt extracted from a job's PDF. The validated
// flag is only ever set through the review endpoint, never by the pipeline.
type DetectedReceipt struct {
	ID            uint   `gorm:"primaryKey"`
	JobID         string `gorm:"size:36;index;not null"`
	Sequence      int    `gorm:"index"`
	Page          int
	X             float64
	Y             float64
	Width         float64
	Height        float64
	Beneficiary   string          `gorm:"size:255;index"`
	Value         decimal.Decimal `gorm:"type:decimal(15,2)"`
	Entity        string          `gorm:"size:100"`
	Account       string          `gorm:"size:50"`
	Reference     string          `gorm:"size:100"`
	AppliedOn     *time.Time      `gorm:"index"`
	Concept       string          `gorm:"size:100"`
	PaymentStatus string          `gorm:"size:50"`
	RawText       string
	ImageFile     string `gorm:"size:255"`
	Validated     bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

// InitializeDB opens the SQLite database under dir and migrates the schema.
func InitializeDB(dir string) *gorm.DB {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create db directory: %v", err)
	}

	dbPath := filepath.Join(dir, "separador_recibos.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&ReceiptJob{}, &DetectedReceipt{}); err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}

	return db
}

// InsertReceiptJob stores a new job record.
func InsertReceiptJob(db *gorm.DB, job *ReceiptJob) error {
	return db.Create(job).Error
}

// GetReceiptJob fetches one job by ID.
func GetReceiptJob(db *gorm.DB, jobID string) (*ReceiptJob, error) {
	var job ReceiptJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateReceiptJob persists changed job fields.
func UpdateReceiptJob(db *gorm.DB, job *ReceiptJob) error {
	return db.Save(job).Error
}

// MarkJobStatus transitions a job's status. An ERROR transition carries the
// triggering message; any other transition clears it, so a retried job never
// shows a stale failure.
func MarkJobStatus(db *gorm.DB, jobID, status, errorMessage string) error {
	updates := map[string]interface{}{"status": status}
	if status == StatusError {
		updates["error_message"] = errorMessage
	} else {
		updates["error_message"] = ""
	}
	result := db.Model(&ReceiptJob{}).Where("id = ?", jobID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

// InsertDetectedReceipt stores one extracted receipt record.
func InsertDetectedReceipt(db *gorm.DB, receipt *DetectedReceipt) error {
	return db.Create(receipt).Error
}

// GetJobReceipts returns a job's receipts in detection order.
func GetJobReceipts(db *gorm.DB, jobID string) ([]DetectedReceipt, error) {
	var receipts []DetectedReceipt
	err := db.Where("job_id = ?", jobID).Order("sequence").Find(&receipts).Error
	return receipts, err
}

// GetDetectedReceipt fetches one receipt by ID.
func GetDetectedReceipt(db *gorm.DB, id uint) (*DetectedReceipt, error) {
	var receipt DetectedReceipt
	if err := db.First(&receipt, id).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SetReceiptValidated flips the human-review flag on one receipt.
func SetReceiptValidated(db *gorm.DB, id uint, validated bool) error {
	result := db.Model(&DetectedReceipt{}).Where("id = ?", id).Update("validated", validated)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("receipt %d not found", id)
	}
	return nil
}

// ListAllReceipts returns every stored receipt, newest jobs first, for the
// export endpoint.
func ListAllReceipts(db *gorm.DB) ([]DetectedReceipt, error) {
	var receipts []DetectedReceipt
	err := db.Order("job_id, sequence").Find(&receipts).Error
	return receipts, err
}
