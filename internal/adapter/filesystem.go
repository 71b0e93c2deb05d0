package adapter

import (
	"os"
)

// FileSystem defines an interface for file operations to enable mocking
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

// RealFileSystem implements FileSystem using the os package
type RealFileSystem struct{}

// NewFileSystem creates a new real file system implementation
func NewFileSystem() FileSystem {
	return &RealFileSystem{}
}

func (f *RealFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name) //nolint:gosec,G304 // This should be a trusted file
}
