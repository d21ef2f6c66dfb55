package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/tilecity/internal/engine"
)

// SnapshotFormat identifies snapshot files.
const SnapshotFormat = "tilecity.snapshot.v1"

// FileHeader is the first line of a snapshot file.
type FileHeader struct {
	Format  string    `json:"format"`
	SavedAt time.Time `json:"saved_at"`
	Keys    int       `json:"keys"`
}

// WriteSnapshot writes doc as a zstd-compressed file: a JSON header line
// followed by the document.
func WriteSnapshot(path string, doc engine.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(enc)
	hb, _ := json.Marshal(FileHeader{Format: SnapshotFormat, SavedAt: time.Now().UTC(), Keys: len(doc)})
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		enc.Close()
		return fmt.Errorf("encode document: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return f.Sync()
}

// ReadSnapshot reads a file written by WriteSnapshot.
func ReadSnapshot(path string) (FileHeader, engine.Document, error) {
	var hdr FileHeader
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, nil, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Format != SnapshotFormat {
		return hdr, nil, fmt.Errorf("unsupported snapshot format %q", hdr.Format)
	}

	var doc engine.Document
	if err := json.NewDecoder(br).Decode(&doc); err != nil {
		return hdr, nil, fmt.Errorf("decode document: %w", err)
	}
	return hdr, doc, nil
}

// SnapshotName returns a timestamped file name for a snapshot.
func SnapshotName(now time.Time) string {
	return "city-" + now.UTC().Format("20060102-150405") + ".json.zst"
}
