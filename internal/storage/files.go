package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Area is the flat shared storage directory holding uploaded sources
// and produced artifacts. Every file gets a collision-resistant
// generated name, so concurrent workers never contend on a path.
type Area struct {
	dir string
}

// NewArea ensures the storage directory exists.
func NewArea(dir string) (*Area, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storage dir: %w", err)
	}
	return &Area{dir: dir}, nil
}

func (a *Area) Dir() string { return a.dir }

// SaveUpload stores an uploaded file under a generated name keeping the
// original extension. Returns the stored file name.
func (a *Area) SaveUpload(fileHeader *multipart.FileHeader, maxBytes int64) (string, error) {
	if fileHeader == nil {
		return "", fmt.Errorf("no file provided")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	name := uuid.NewString() + ext
	dstPath := filepath.Join(a.dir, name)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	limited := io.LimitReader(src, maxBytes)
	if _, err := io.Copy(dst, limited); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("copy upload: %w", err)
	}
	return name, nil
}

// Path resolves a stored file name within the area, rejecting anything
// that would escape the flat namespace.
func (a *Area) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(a.dir, name), nil
}

// Content types by extension for artifact downloads.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".avif": "image/avif",
	".tiff": "image/tiff",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
}

// ContentType returns the media type for a stored file name, falling
// back to application/octet-stream.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
