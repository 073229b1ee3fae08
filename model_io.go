package structured

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// writeGob encodes value into a gob file inside the model directory,
// creating the directory if needed.
func writeGob(dir, filename string, value any) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("unable to open directory: %w", err)
	}
	file, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", filename, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(value); err != nil {
		return fmt.Errorf("unable to encode %s: %w", filename, err)
	}
	return nil
}

// readGob decodes a gob file from the model directory into value.
func readGob(dir, filename string, value any) error {
	file, err := os.Open(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", filename, err)
	}
	defer file.Close()
	if err := gob.NewDecoder(file).Decode(value); err != nil {
		return fmt.Errorf("unable to decode %s: %w", filename, err)
	}
	return nil
}
