package jobs

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// TranslationJob is one chapter awaiting translation. Jobs live for a single
// run and are never persisted; the cache decides what is outstanding.
type TranslationJob struct {
	Fingerprint string
	Title       string
	Content     string
}

func (j TranslationJob) String() string {
	return fmt.Sprintf("%s/%q", j.Fingerprint, j.Title)
}

// Result is the outcome of one dispatched job.
type Result struct {
	Job      TranslationJob
	Status   Status
	Attempts int
	Chars    int
	Err      error
	Elapsed  time.Duration
}

// Report summarizes a dispatch.
type Report struct {
	Translated []Result
	Failed     []Result
}

// Chars returns the number of source characters translated successfully.
func (r *Report) Chars() int {
	n := 0
	for _, res := range r.Translated {
		n += res.Chars
	}
	return n
}
