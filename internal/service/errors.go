package service

import "errors"

var (
	ErrMissingCredential = errors.New("no API credential configured")
	ErrEmptySelection    = errors.New("nothing selected")
	ErrNoOpenBatch       = errors.New("no batch is open")
	ErrBatchMismatch     = errors.New("batch is not the open batch")
	ErrNothingToReview   = errors.New("no products are awaiting review")
	ErrInFlight          = errors.New("a submission is already in progress")
	ErrNothingResolved   = errors.New("no download URLs could be resolved")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotFinished    = errors.New("job not completed")
	ErrJobFinished       = errors.New("job already completed")
)
