package reader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/port"
	"github.com/ledongthuc/pdf"
)

// errSkip marks files that are readable but carry no indexable text.
var errSkip = errors.New("skip file")

// DirectoryReader reads every matching file under a corpus directory.
// Text files are read as UTF-8, dropping invalid bytes, and PDFs are
// converted to plain text.
type DirectoryReader struct {
	walker port.FileWalker
	logger *slog.Logger
}

func NewDirectoryReader(includes, excludes []string, logger *slog.Logger) *DirectoryReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryReader{
		walker: NewWalker(includes, excludes),
		logger: logger,
	}
}

// Walk lists the corpus files without reading them.
func (r *DirectoryReader) Walk(dir string) ([]port.FileInfo, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoDocuments, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrNoDocuments, dir)
	}

	files, err := r.walker.Walk(dir)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoDocuments, dir)
	}
	return files, nil
}

// LoadFile reads a single file. It returns an error wrapping errSkip when the
// file is empty or binary; IsSkipped reports that case.
func (r *DirectoryReader) LoadFile(ctx context.Context, f port.FileInfo) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(f.Path))

	var text string
	var err error
	switch ext {
	case ".pdf":
		text, err = readPDF(f.Path)
	default:
		text, err = readText(f.Path)
	}
	if errors.Is(err, errSkip) {
		r.logger.Debug("skipping file", "path", f.Path, "reason", err)
		return domain.Document{}, err
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", f.Path, err)
	}

	fileType := strings.TrimPrefix(ext, ".")
	if fileType == "" {
		fileType = "txt"
	}

	return domain.Document{
		ID:      DocID(f.Path),
		Path:    f.Path,
		ModTime: time.Unix(0, f.ModTime),
		Text:    text,
		Metadata: map[string]string{
			"file_path": f.Path,
			"file_name": filepath.Base(f.Path),
			"file_type": fileType,
		},
	}, nil
}

// IsSkipped reports whether err means the file had nothing to index.
func IsSkipped(err error) bool {
	return errors.Is(err, errSkip)
}

// DocID derives a stable document ID from its path.
func DocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("%w: empty", errSkip)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", errSkip)
	}
	// legacy encodings lose their stray bytes, not the whole file
	return strings.ToValidUTF8(string(data), ""), nil
}

func readPDF(path string) (string, error) {
	f, pr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= pr.NumPage(); i++ {
		page := pr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text in pdf", errSkip)
	}
	return sb.String(), nil
}

var (
	_ port.DocumentReader = (*DirectoryReader)(nil)
	_ port.FileWalker     = (*Walker)(nil)
)
