//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build, no C compiler required:
//
//	CGO_ENABLED=0 go build ./...
//
// Cosine similarity is computed in Go over every stored embedding, which is
// fine for a bank of a few tens of thousands of summaries.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
