// Package ingest turns uploaded files into session documents. Markdown and
// plain text are read directly; office formats go through an external
// converter command; anything unreadable becomes an empty document rather
// than an error so one bad file never blocks a session.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"deepvision/internal/logging"
	"deepvision/internal/types"
)

// contentCap bounds document content at ingestion time. Prompt-time budgets
// are much tighter, this only keeps session files from ballooning.
const contentCap = 10000

// officeExtensions are handled by the external converter.
var officeExtensions = map[string]bool{
	".docx": true,
	".xlsx": true,
	".pptx": true,
}

// Converter ingests files from disk. command is the external converter
// invocation for office formats, the file path is appended as the last
// argument and markdown is expected on stdout. An empty command disables
// office conversion.
type Converter struct {
	command []string
}

func NewConverter(command []string) *Converter {
	return &Converter{command: command}
}

// DefaultCommand converts office documents to markdown via pandoc.
func DefaultCommand() []string {
	return []string{"pandoc", "-t", "markdown"}
}

// Ingest reads the file at path into a Document. The document type is the
// lowercased file extension. Conversion failures are logged and yield a
// document with empty content.
func (c *Converter) Ingest(ctx context.Context, path string) (types.Document, error) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	doc := types.Document{
		Name:       name,
		Type:       ext,
		UploadedAt: types.UTCNow(),
	}

	content, err := c.extract(ctx, path, name, ext)
	if err != nil {
		return doc, err
	}

	doc.Content = truncateRunes(content, contentCap)
	return doc, nil
}

func (c *Converter) extract(ctx context.Context, path, name, ext string) (string, error) {
	switch {
	case ext == ".md" || ext == ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return string(data), nil

	case ext == ".pdf":
		// PDFs carry a placeholder, the model is told the file exists
		return fmt.Sprintf("[PDF 文件: %s]", name), nil

	case officeExtensions[ext]:
		return c.convertOffice(ctx, path, name), nil

	default:
		logging.Session("unsupported document type %s for %s, storing empty content", ext, name)
		return "", nil
	}
}

func (c *Converter) convertOffice(ctx context.Context, path, name string) string {
	if len(c.command) == 0 {
		logging.Session("no converter configured, storing %s with empty content", name)
		return ""
	}

	timer := logging.StartTimer(logging.CategorySession, "document conversion")
	defer timer.Stop()

	args := append(append([]string(nil), c.command[1:]...), path)
	cmd := exec.CommandContext(ctx, c.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logging.Session("converting %s failed: %v (%s)", name, err, strings.TrimSpace(stderr.String()))
		return ""
	}
	return stdout.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
