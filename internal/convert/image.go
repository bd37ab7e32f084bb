package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Extra output arguments per image target format. bmp and gif are kept
// in the list for parity with the upload form but rendered as-is.
var imageFormatArgs = map[string][]string{
	"jpg":  {"-q:v", "2"},
	"jpeg": {"-q:v", "2"},
	"png":  {"-compression_level", "6"},
	"webp": {"-quality", "90"},
	"avif": {"-crf", "23"},
	"tiff": {"-compression_algo", "lzw"},
	"bmp":  {},
	"gif":  {},
}

// ImageConverter rasterizes still images through a single-shot ffmpeg
// invocation. No intermediate progress is reported.
type ImageConverter struct {
	binary string
}

func NewImageConverter() *ImageConverter {
	return &ImageConverter{binary: "ffmpeg"}
}

func (c *ImageConverter) Supports(targetFormat string) bool {
	_, ok := imageFormatArgs[strings.ToLower(targetFormat)]
	return ok
}

func (c *ImageConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	format := strings.ToLower(req.TargetFormat)
	extraArgs, ok := imageFormatArgs[format]
	if !ok {
		return Result{}, &UnsupportedFormatError{Format: req.TargetFormat}
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("source file unreadable: %v", err)}
	}

	outputFile := uuid.NewString() + "." + format
	outputPath := filepath.Join(req.OutputDir, outputFile)

	args := []string{"-y", "-i", req.InputPath}
	args = append(args, extraArgs...)
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)
		return Result{}, classifyExecError(c.binary, err, string(output))
	}

	return Result{OutputFile: outputFile}, nil
}
