package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	stripmd "github.com/writeas/go-strip-markdown/v2"
)

var markdownExtensions = map[string]bool{".md": true, ".markdown": true}

var textLikeExtensions = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".markdown": true,
}

// DocumentConverter renders plain text and Markdown documents to PDF.
// A PDF source is passed through unchanged. Single-shot, no intermediate
// progress reports.
type DocumentConverter struct{}

func NewDocumentConverter() *DocumentConverter {
	return &DocumentConverter{}
}

func (c *DocumentConverter) Supports(targetFormat string) bool {
	return strings.ToLower(targetFormat) == "pdf"
}

func (c *DocumentConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	format := strings.ToLower(req.TargetFormat)
	if format != "pdf" {
		return Result{}, &UnsupportedFormatError{Type: MediaDocument, Format: req.TargetFormat}
	}

	outputFile := uuid.NewString() + "." + format
	outputPath := filepath.Join(req.OutputDir, outputFile)
	inputExt := strings.ToLower(filepath.Ext(req.InputPath))

	if inputExt == ".pdf" {
		if err := copyFile(req.InputPath, outputPath); err != nil {
			return Result{}, TransientError(err)
		}
		return Result{OutputFile: outputFile}, nil
	}

	if !textLikeExtensions[inputExt] {
		return Result{}, &ValidationError{
			Reason: fmt.Sprintf("document conversion from %q to PDF is not supported; supported sources: .md, .markdown, .txt", inputExt),
		}
	}

	content, err := os.ReadFile(req.InputPath)
	if err != nil {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("read source: %v", err)}
	}

	if err := renderPDF(string(content), markdownExtensions[inputExt], outputPath); err != nil {
		_ = os.Remove(outputPath)
		return Result{}, PermanentError(fmt.Errorf("render pdf: %w", err))
	}

	return Result{OutputFile: outputFile}, nil
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)`)
var listPattern = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s+(.*)`)

func renderPDF(content string, isMarkdown bool, outputPath string) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	bodyFont := func() { doc.SetFont("Helvetica", "", 12) }
	bodyFont()

	inCodeBlock := false
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			if inCodeBlock {
				doc.SetFont("Courier", "", 10)
			} else {
				bodyFont()
			}
			doc.Ln(2)
			continue
		}

		if inCodeBlock {
			doc.MultiCell(0, 5, tr(line), "", "L", false)
			continue
		}

		if trimmed == "" {
			doc.Ln(3)
			continue
		}

		if m := headingPattern.FindStringSubmatch(trimmed); isMarkdown && m != nil {
			level := len(m[1])
			size := 22 - float64(level)*2
			if size < 14 {
				size = 14
			}
			doc.SetFont("Helvetica", "B", size)
			doc.MultiCell(0, size*0.5, tr(stripmd.Strip(m[2])), "", "L", false)
			doc.Ln(2)
			bodyFont()
			continue
		}

		if m := listPattern.FindStringSubmatch(line); isMarkdown && m != nil {
			doc.MultiCell(0, 6, tr("  • "+stripmd.Strip(m[2])), "", "L", false)
			continue
		}

		text := line
		if isMarkdown {
			text = stripmd.Strip(line)
		}
		doc.MultiCell(0, 6, tr(text), "", "L", false)
	}

	return doc.OutputFileAndClose(outputPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}
