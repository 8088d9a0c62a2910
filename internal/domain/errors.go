package domain

import "errors"

var (
	// ErrNoDocuments is returned when a corpus directory yields nothing to index.
	ErrNoDocuments = errors.New("no documents found")

	// ErrIndexNotFound is returned when no persisted index exists yet.
	ErrIndexNotFound = errors.New("index not found")

	ErrNotFound = errors.New("not found")
)
