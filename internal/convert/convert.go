package convert

import (
	"context"
)

// MediaType selects which converter handles a job.
type MediaType string

const (
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaVideo, MediaAudio, MediaImage, MediaDocument:
		return true
	}
	return false
}

// ProgressFunc receives conversion progress as a percentage in [0,100].
// Converters without native progress reporting never call it.
type ProgressFunc func(percent int)

// Request describes a single conversion of one input file.
type Request struct {
	InputPath    string // absolute path to the source file
	TargetFormat string // requested output format, e.g. "mp4", "webp", "pdf"
	OutputDir    string // directory the output artifact is written into
}

// Result is returned by a successful conversion.
type Result struct {
	OutputFile string // file name of the produced artifact within OutputDir
}

// Converter performs one media conversion. Implementations must write
// exactly one output artifact under a fresh name, must not mutate the
// input file, and must be safe for concurrent use across unrelated jobs.
type Converter interface {
	// Supports reports whether the converter can produce targetFormat.
	Supports(targetFormat string) bool
	// Convert runs the conversion and returns the produced file name.
	// progress may be nil.
	Convert(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}
