package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	port            = os.Getenv("PORT")
	mediaRoot       = os.Getenv("MEDIA_ROOT")
	databaseDir     = os.Getenv("DATABASE_DIR")
	logLevel        = strings.ToLower(os.Getenv("LOG_LEVEL"))
	numWorkers      = os.Getenv("NUM_WORKERS")
	cleanupInterval = os.Getenv("CLEANUP_INTERVAL")
)

// App struct to hold dependencies
type App struct {
	Database *gorm.DB
	Storage  *Storage
	Template TemplateProfile
}

func main() {
	// Optional .env file for local runs
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded configuration from .env file")
		reloadEnvVars()
	}

	// Validate Environment Variables
	validateEnvVars()

	// Initialize logrus logger
	initLogger()

	// Initialize media storage
	storage, err := NewStorage(mediaRoot)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}

	// Initialize Database
	database := InitializeDB(databaseDir)

	// Initialize App with dependencies
	app := &App{
		Database: database,
		Storage:  storage,
		Template: DefaultTemplateProfile(),
	}

	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()

	// API routes
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

	// Start processing worker pool
	startWorkerPool(app, workerCount())

	// Start stale-media cleanup loop
	startCleanupLoop(storage, cleanupIntervalDuration())

	log.Infoln("Server started on port :" + port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// reloadEnvVars re-reads the package-level config after .env loading, since
// the vars above are captured before godotenv runs.
func reloadEnvVars() {
	port = os.Getenv("PORT")
	mediaRoot = os.Getenv("MEDIA_ROOT")
	databaseDir = os.Getenv("DATABASE_DIR")
	logLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	numWorkers = os.Getenv("NUM_WORKERS")
	cleanupInterval = os.Getenv("CLEANUP_INTERVAL")
}

func initLogger() {
	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// validateEnvVars fills in defaults and rejects unusable values.
func validateEnvVars() {
	if port == "" {
		port = "8080"
	}
	if _, err := strconv.Atoi(port); err != nil {
		log.Fatalf("Invalid PORT value: '%s'.", port)
	}

	if mediaRoot == "" {
		mediaRoot = "media"
	}

	if databaseDir == "" {
		databaseDir = "db"
	}

	if numWorkers != "" {
		n, err := strconv.Atoi(numWorkers)
		if err != nil || n < 1 {
			log.Fatalf("Invalid NUM_WORKERS value: '%s'.", numWorkers)
		}
	}

	if cleanupInterval != "" {
		if _, err := time.ParseDuration(cleanupInterval); err != nil {
			log.Fatalf("Invalid CLEANUP_INTERVAL value: '%s'.", cleanupInterval)
		}
	}
}

func workerCount() int {
	if numWorkers == "" {
		return 1
	}
	n, _ := strconv.Atoi(numWorkers)
	return n
}

func cleanupIntervalDuration() time.Duration {
	if cleanupInterval == "" {
		return 6 * time.Hour
	}
	d, _ := time.ParseDuration(cleanupInterval)
	return d
}
