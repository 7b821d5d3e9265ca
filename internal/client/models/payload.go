package models

import (
	"fmt"
	"os"
	"time"
)

// Payload owns the bytes of the file being uploaded. In memory it is a
// handle to a local file; the persistence layer encodes the bytes
// separately and re-materializes a file on load.
type Payload struct {
	Path        string
	Name        string
	ContentType string
	ModTime     time.Time
	Size        int64
}

// Open returns a fresh read handle on the payload file.
func (p Payload) Open() (*os.File, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("payload %q has no backing file", p.Name)
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return f, nil
}

// ReadAll loads the payload bytes.
func (p Payload) ReadAll() ([]byte, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("payload %q has no backing file", p.Name)
	}
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}
