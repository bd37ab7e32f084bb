package convert

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Codec argument sets per target format, matching the service defaults.
var videoFormatArgs = map[string][]string{
	"mp4":  {"-c:v", "libx264", "-c:a", "aac"},
	"webm": {"-c:v", "libvpx-vp9", "-c:a", "libopus"},
	"avi":  {"-c:v", "libx264", "-c:a", "mp3"},
	"mov":  {"-c:v", "libx264", "-c:a", "aac"},
	"mkv":  {"-c:v", "libx264", "-c:a", "aac"},
	"flv":  {},
	"wmv":  {},
}

var audioFormatArgs = map[string][]string{
	"mp3":  {"-c:a", "libmp3lame", "-b:a", "192k"},
	"wav":  {"-c:a", "pcm_s16le"},
	"flac": {"-c:a", "flac"},
	"aac":  {"-c:a", "aac", "-b:a", "192k"},
	"ogg":  {"-c:a", "libvorbis", "-q:a", "5"},
	"m4a":  {"-c:a", "aac", "-b:a", "192k", "-f", "ipod"},
	"wma":  {},
}

// FFmpegConverter transcodes video or audio by shelling out to ffmpeg,
// reporting percentage progress parsed from its machine-readable
// `-progress` output against the ffprobe source duration.
type FFmpegConverter struct {
	binary      string
	probeBinary string
	formatArgs  map[string][]string
	audioOnly   bool
}

// NewVideoConverter builds an ffmpeg-backed converter for video targets.
func NewVideoConverter() *FFmpegConverter {
	return &FFmpegConverter{
		binary:      "ffmpeg",
		probeBinary: "ffprobe",
		formatArgs:  videoFormatArgs,
	}
}

// NewAudioConverter builds an ffmpeg-backed converter for audio targets.
func NewAudioConverter() *FFmpegConverter {
	return &FFmpegConverter{
		binary:      "ffmpeg",
		probeBinary: "ffprobe",
		formatArgs:  audioFormatArgs,
		audioOnly:   true,
	}
}

func (c *FFmpegConverter) Supports(targetFormat string) bool {
	_, ok := c.formatArgs[strings.ToLower(targetFormat)]
	return ok
}

func (c *FFmpegConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	format := strings.ToLower(req.TargetFormat)
	extraArgs, ok := c.formatArgs[format]
	if !ok {
		return Result{}, &UnsupportedFormatError{Format: req.TargetFormat}
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("source file unreadable: %v", err)}
	}

	outputFile := uuid.NewString() + "." + format
	outputPath := filepath.Join(req.OutputDir, outputFile)

	// Without a known duration progress cannot be computed; convert blind.
	totalMs := int64(0)
	if duration, err := c.probeDuration(ctx, req.InputPath); err == nil {
		totalMs = int64(duration * 1000)
	}

	args := c.buildArgs(req.InputPath, outputPath, extraArgs)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, TransientError(err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, TransientError(fmt.Errorf("start %s: %w", c.binary, err))
	}

	scanProgress(stdout, totalMs, progress)

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(outputPath)
		return Result{}, classifyExecError(c.binary, err, stderr.String())
	}

	return Result{OutputFile: outputFile}, nil
}

func (c *FFmpegConverter) buildArgs(inputPath, outputPath string, extraArgs []string) []string {
	args := []string{"-y", "-i", inputPath, "-progress", "pipe:1", "-nostats"}
	if c.audioOnly {
		args = append(args, "-vn")
	}
	args = append(args, extraArgs...)
	return append(args, outputPath)
}

// Stderr markers meaning the source itself cannot be decoded. Such
// failures are deterministic, retrying them cannot succeed.
var permanentExecMarkers = []string{
	"Invalid data found when processing input",
	"moov atom not found",
	"could not find codec parameters",
	"Error while decoding stream",
}

// classifyExecError wraps an ffmpeg exit error, marking it permanent
// when stderr shows the input is undecodable and transient otherwise.
func classifyExecError(binary string, err error, output string) error {
	wrapped := fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(output))
	for _, marker := range permanentExecMarkers {
		if strings.Contains(output, marker) {
			return PermanentError(wrapped)
		}
	}
	return TransientError(wrapped)
}

// scanProgress reads ffmpeg key=value progress lines and forwards
// out_time_ms as a percentage, capped at 99 until the process exits.
func scanProgress(r io.Reader, totalMs int64, progress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	last := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, "=")
		if !found || key != "out_time_ms" {
			continue
		}
		if totalMs <= 0 || progress == nil {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		// out_time_ms is in microseconds despite the name.
		percent := int(float64(us/1000) / float64(totalMs) * 100)
		if percent > 99 {
			percent = 99
		}
		if percent > last {
			last = percent
			progress(percent)
		}
	}
}

func (c *FFmpegConverter) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.probeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", c.probeBinary, err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
