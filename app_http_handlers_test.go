package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	app := &App{
		Database: InitializeDB(t.TempDir()),
		Storage:  storage,
		Template: DefaultTemplateProfile(),
	}

	router := gin.New()
	api := router.Group("/api")
	{
		api.POST("/jobs", app.uploadJobHandler)
		api.GET("/jobs/:id", app.jobStatusHandler)
		api.GET("/jobs/:id/receipts", app.jobReceiptsHandler)
		api.GET("/jobs/:id/download/:kind", app.downloadResultHandler)
		api.GET("/receipts/:id/image", app.receiptImageHandler)
		api.POST("/receipts/:id/validate", app.validateReceiptHandler)
		api.GET("/receipts/export", app.exportReceiptsHandler)
	}
	return app, router
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, fileData []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(fileData)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func drainQueue() {
	for {
		select {
		case <-jobQueue:
		default:
			return
		}
	}
}

func TestUploadJobHandlerAcceptsPDF(t *testing.T) {
	app, router := newTestApp(t)
	drainQueue()
	defer drainQueue()

	pdfData := []byte("%PDF-1.4\n1 0 obj\nendobj\ntrailer\n%%EOF")
	req := uploadRequest(t, map[string]string{
		"image_quality":  "medium",
		"output_format":  "both",
		"extract_images": "false",
	}, "recibos.pdf", pdfData)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusPending, resp.Status)

	job, err := GetReceiptJob(app.Database, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "medium", job.ImageQuality)
	assert.Equal(t, "large", job.ImageSize) // default
	assert.Equal(t, "both", job.OutputFormat)
	assert.False(t, job.ExtractImages)
	assert.True(t, job.GenerateReport)
	assert.FileExists(t, app.Storage.OriginalPath(job.OriginalFile))
}

func TestUploadJobHandlerRejectsNonPDF(t *testing.T) {
	_, router := newTestApp(t)

	req := uploadRequest(t, nil, "notes.txt", []byte("plain text, not a document"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "expected a PDF")
}

func TestUploadJobHandlerRequiresFile(t *testing.T) {
	_, router := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobStatusHandler(t *testing.T) {
	app, router := newTestApp(t)

	job := &ReceiptJob{ID: uuid.New().String(), OriginalFile: "x.pdf", Status: StatusProcessing}
	require.NoError(t, InsertReceiptJob(app.Database, job))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusProcessing, resp.Status)
	assert.Equal(t, 50, resp.Progress)
}

func TestJobStatusHandlerNotFound(t *testing.T) {
	_, router := newTestApp(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.New().String(), nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobProgress(t *testing.T) {
	assert.Equal(t, 10, jobProgress(StatusPending))
	assert.Equal(t, 50, jobProgress(StatusProcessing))
	assert.Equal(t, 100, jobProgress(StatusCompleted))
	assert.Equal(t, 0, jobProgress(StatusError))
}

func TestDownloadResultHandler(t *testing.T) {
	app, router := newTestApp(t)

	name, err := app.Storage.SaveResult("recibos_separados_j1.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	job := &ReceiptJob{ID: uuid.New().String(), OriginalFile: "x.pdf", Status: StatusCompleted, ResultFile: name}
	require.NoError(t, InsertReceiptJob(app.Database, job))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/download/result", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	// The text artifact was never generated for this job.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/download/text", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/download/bogus", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateReceiptHandler(t *testing.T) {
	app, router := newTestApp(t)

	jobID := uuid.New().String()
	require.NoError(t, InsertReceiptJob(app.Database, &ReceiptJob{ID: jobID, OriginalFile: "x.pdf", Status: StatusCompleted}))
	receipt := &DetectedReceipt{JobID: jobID, Sequence: 1, Page: 1}
	require.NoError(t, InsertDetectedReceipt(app.Database, receipt))

	body := strings.NewReader(`{"validated": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/"+strconv.Itoa(int(receipt.ID))+"/validate", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	loaded, err := GetDetectedReceipt(app.Database, receipt.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Validated)
}

func TestExportReceiptsHandler(t *testing.T) {
	app, router := newTestApp(t)

	jobID := uuid.New().String()
	require.NoError(t, InsertReceiptJob(app.Database, &ReceiptJob{ID: jobID, OriginalFile: "x.pdf", Status: StatusCompleted}))
	require.NoError(t, InsertDetectedReceipt(app.Database, &DetectedReceipt{
		JobID:       jobID,
		Sequence:    1,
		Page:        1,
		Beneficiary: "JUAN PEREZ",
		Value:       decimal.RequireFromString("1000"),
		Entity:      "BANCOLOMBIA",
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/receipts/export", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "recibos_export.csv")
	assert.Contains(t, w.Body.String(), "beneficiario")
	assert.Contains(t, w.Body.String(), "JUAN PEREZ")
	assert.Contains(t, w.Body.String(), "1000.00")
}
