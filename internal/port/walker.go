package port

import (
	"context"

	"docqa/internal/domain"
)

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// DocumentReader lists and reads the files of a corpus directory.
type DocumentReader interface {
	Walk(dir string) ([]FileInfo, error)

	// LoadFile reads a single file found by the walker.
	LoadFile(ctx context.Context, file FileInfo) (domain.Document, error)
}
