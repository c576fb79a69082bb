package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/ipcsim/internal/world"
)

type ExportData struct {
	Run    RunMetadata         `json:"run"`
	Frames []world.FrameReport `json:"frames"`
}

// Export writes a stored run as one JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	frames, err := s.LoadFrames(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Run: *meta, Frames: frames})
}

// ExportJSON writes a stored run to path.
func (s *Store) ExportJSON(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Export(file, runID); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
