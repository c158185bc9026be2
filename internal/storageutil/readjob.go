package storageutil

import (
	"context"

	"gocloud.dev/blob"
)

type (
	// ReadJob fetches one compressed object and sends the outcome on Result.
	ReadJob struct {
		Ctx        context.Context
		Storage    *blob.Bucket
		ObjectName string
		// Index lets callers put results back in request order.
		Index  int
		Result chan<- ReadJobResult
	}

	ReadJobResult struct {
		Err        error
		ObjectName string
		Index      int
		Data       []byte
	}
)

func (job ReadJob) Read() {
	data, err := ReadCompressed(job.Ctx, job.Storage, job.ObjectName)
	job.Result <- ReadJobResult{
		Err:        err,
		ObjectName: job.ObjectName,
		Index:      job.Index,
		Data:       data,
	}
}

// ReadWorker runs jobs until the channel is closed.
func ReadWorker(jobs <-chan ReadJob) {
	for job := range jobs {
		job.Read()
	}
}
