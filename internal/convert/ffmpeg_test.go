package convert

import (
	"errors"
	"strings"
	"testing"
)

func TestFFmpegConverter_Supports(t *testing.T) {
	video := NewVideoConverter()
	for _, f := range []string{"mp4", "webm", "MKV"} {
		if !video.Supports(f) {
			t.Fatalf("video converter should support %q", f)
		}
	}
	if video.Supports("mp3") {
		t.Fatalf("video converter must not claim audio formats")
	}

	audio := NewAudioConverter()
	if !audio.Supports("mp3") || audio.Supports("mp4") {
		t.Fatalf("audio format table wrong")
	}
}

func TestFFmpegConverter_BuildArgs(t *testing.T) {
	audio := NewAudioConverter()
	args := audio.buildArgs("/in/src.wav", "/out/a.mp3", audioFormatArgs["mp3"])

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-i /in/src.wav") {
		t.Fatalf("input missing: %v", args)
	}
	if !strings.Contains(joined, "-vn") {
		t.Fatalf("audio conversion must drop video streams: %v", args)
	}
	if !strings.Contains(joined, "-progress pipe:1") {
		t.Fatalf("progress reporting not requested: %v", args)
	}
	if args[len(args)-1] != "/out/a.mp3" {
		t.Fatalf("output must be the final argument: %v", args)
	}

	video := NewVideoConverter()
	vargs := video.buildArgs("/in/src.avi", "/out/v.mp4", videoFormatArgs["mp4"])
	if strings.Contains(strings.Join(vargs, " "), "-vn") {
		t.Fatalf("video conversion must keep video streams: %v", vargs)
	}
}

func TestScanProgress(t *testing.T) {
	// ffmpeg emits out_time_ms in microseconds.
	input := strings.Join([]string{
		"frame=10",
		"out_time_ms=2500000",
		"progress=continue",
		"out_time_ms=5000000",
		"out_time_ms=garbage",
		"out_time_ms=4000000", // late report, must not go backward
		"out_time_ms=10000000",
		"progress=end",
	}, "\n")

	var got []int
	scanProgress(strings.NewReader(input), 10_000, func(p int) { got = append(got, p) })

	want := []int{25, 50, 99}
	if len(got) != len(want) {
		t.Fatalf("progress calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress calls = %v, want %v", got, want)
		}
	}
}

func TestScanProgress_NoDurationNoCalls(t *testing.T) {
	called := false
	scanProgress(strings.NewReader("out_time_ms=1000000\n"), 0, func(int) { called = true })
	if called {
		t.Fatalf("progress reported without a known duration")
	}
}

func TestClassifyExecError(t *testing.T) {
	exit := errors.New("exit status 1")

	undecodable := classifyExecError("ffmpeg", exit,
		"input.mp4: Invalid data found when processing input")
	var conv *ConversionError
	if !errors.As(undecodable, &conv) || conv.Transient {
		t.Fatalf("undecodable input must be permanent: %v", undecodable)
	}

	truncated := classifyExecError("ffmpeg", exit, "moov atom not found")
	if !errors.As(truncated, &conv) || conv.Transient {
		t.Fatalf("truncated container must be permanent: %v", truncated)
	}

	unknown := classifyExecError("ffmpeg", exit, "Cannot allocate memory")
	if !errors.As(unknown, &conv) || !conv.Transient {
		t.Fatalf("unrecognized failure must stay transient: %v", unknown)
	}
	if !errors.Is(unknown, exit) {
		t.Fatalf("exit error not preserved in chain")
	}
}
