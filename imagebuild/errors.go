package imagebuild

import "errors"

var (
	// ErrSourceChanged is returned when the source yields different files
	// or sizes while writing the image than while sizing it.
	ErrSourceChanged = errors.New("source changed during build")

	// ErrTooLarge is returned when the image exceeds Config.MaxBytes.
	ErrTooLarge = errors.New("image exceeds size limit")
)
