package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/convert"
	"mediaconv/internal/jobs"
	"mediaconv/internal/processor"
	"mediaconv/internal/storage"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// copyConverter copies the input to a fresh artifact, standing in for a
// real media conversion.
type copyConverter struct{}

func (copyConverter) Supports(format string) bool { return format == "webp" }

func (copyConverter) Convert(ctx context.Context, req convert.Request, progress convert.ProgressFunc) (convert.Result, error) {
	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return convert.Result{}, &convert.ValidationError{Reason: err.Error()}
	}
	if progress != nil {
		progress(50)
	}
	name := uuid.NewString() + "." + req.TargetFormat
	if err := os.WriteFile(filepath.Join(req.OutputDir, name), data, 0o644); err != nil {
		return convert.Result{}, convert.TransientError(err)
	}
	return convert.Result{OutputFile: name}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, jobs.Store) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewArea(dir)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	store := jobs.NewMemoryStore()
	registry := convert.NewRegistry()
	registry.Register(convert.MediaImage, copyConverter{})

	policy := jobs.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	worker := processor.New(testLogger(), store, registry, policy, dir)
	queue := jobs.NewQueue(testLogger(), 16, 2, policy)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := queue.Start(ctx, worker); err != nil {
		t.Fatalf("start queue: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = config.ByteSize(1 << 20)
	cfg.Server.StorageDir = dir

	svc := &Service{
		Log:   testLogger(),
		Cfg:   cfg,
		Jobs:  jobs.NewService(testLogger(), store, queue),
		Files: files,
	}
	srv := httptest.NewServer(NewHTTPServer(svc).Handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func postFile(t *testing.T, url, mediaType, targetFormat string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = mw.WriteField("type", mediaType)
	_ = mw.WriteField("targetFormat", targetFormat)
	_ = mw.Close()

	resp, err := http.Post(url+"/api/convert", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_ConvertFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFile(t, srv.URL, "image", "webp")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Fatalf("response not successful: %+v", body)
	}
	data, _ := json.Marshal(body.Data)
	var up uploadData
	_ = json.Unmarshal(data, &up)
	if up.JobID == "" || up.StatusURL == "" {
		t.Fatalf("missing job data: %+v", up)
	}

	// Poll until terminal.
	var job jobs.Job
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + up.StatusURL)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		body := decodeResponse(t, resp)
		raw, _ := json.Marshal(body.Data)
		_ = json.Unmarshal(raw, &job)
		if job.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if job.Status != jobs.StatusCompleted {
		t.Fatalf("job failed: %+v", job)
	}
	if job.Progress != 100 || job.OutputFile == "" {
		t.Fatalf("completion fields wrong: %+v", job)
	}

	// Download the artifact.
	resp2, err := http.Get(srv.URL + "/api/files/" + job.OutputFile)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp2.StatusCode)
	}
	if ct := resp2.Header.Get("Content-Type"); ct != "image/webp" {
		t.Fatalf("content type = %q", ct)
	}
	payload, _ := io.ReadAll(resp2.Body)
	if string(payload) != "fake image bytes" {
		t.Fatalf("artifact content mismatch")
	}
}

func TestServer_ConvertRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFile(t, srv.URL, "", "webp")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing type: status = %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postFile(t, srv.URL, "hologram", "webp")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type: status = %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestServer_JobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/jobs/no-such-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Success || body.Error == "" {
		t.Fatalf("error envelope wrong: %+v", body)
	}
}

func TestServer_DownloadRejectsTraversal(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/files/..%2Fsecrets.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("traversal served: %d", resp.StatusCode)
	}
}

func TestServer_ListJobs(t *testing.T) {
	srv, store := newTestServer(t)
	if err := store.Create(&jobs.Job{ID: "x", Type: convert.MediaImage, Status: jobs.StatusPending, InputFile: "a.png", TargetFormat: "webp", CreatedAt: time.Now(), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	resp, err := http.Get(srv.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeResponse(t, resp)
	if !body.Success {
		t.Fatalf("list failed: %+v", body)
	}
	items, ok := body.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected list payload: %+v", body.Data)
	}
}
