package pipeline

import (
	"errors"

	"github.com/ryan4259/r2-image-compressor/internal/transcode"
)

// Stage identifies where in the pipeline a request failed.
type Stage string

const (
	StageValidation     Stage = "validation"
	StageTranscodeFull  Stage = "transcode-full"
	StageTranscodeThumb Stage = "transcode-thumbnail"
	StageStoreFull      Stage = "store-full"
	StageStoreThumb     Stage = "store-thumbnail"
)

// StageError tags a failure with the stage that produced it. No stage
// failure is swallowed; the boundary layer decides what to expose.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// ClientError reports whether the failure was caused by the request itself
// (a validation rejection or undecodable bytes) rather than by this service.
func ClientError(err error) bool {
	var se *StageError
	if errors.As(err, &se) && se.Stage == StageValidation {
		return true
	}
	var de *transcode.DecodeError
	return errors.As(err, &de)
}
