package main

import (
	"context"
	"fmt"
)

// jobQueue feeds pending job IDs to the worker pool. Job state itself lives
// in the database; the queue only carries the ID. One worker owns a job
// end-to-end, so a document is never processed twice concurrently.
var jobQueue = make(chan string, 100)

// enqueueJob hands a pending job to the worker pool without blocking the
// upload request.
func enqueueJob(jobID string) error {
	select {
	case jobQueue <- jobID:
		return nil
	default:
		return fmt.Errorf("processing queue is full")
	}
}

// startWorkerPool launches numWorkers goroutines draining the job queue.
func startWorkerPool(app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			log.Infof("Worker %d started", workerID)
			for jobID := range jobQueue {
				log.Infof("Worker %d processing job %s", workerID, jobID)
				if err := app.ProcessReceiptJob(context.Background(), jobID); err != nil {
					log.WithField("job_id", jobID).WithError(err).Error("Job failed")
					continue
				}
				log.Infof("Worker %d completed job %s", workerID, jobID)
			}
		}(i)
	}
}
