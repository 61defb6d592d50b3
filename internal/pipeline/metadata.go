package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// MetadataFileName is the sibling document listing every record for a
// target, consumed by the external browsing-interface generator.
const MetadataFileName = "metadata.json"

// appendMetadata merges rec into the target's metadata document and
// rewrites it atomically (temp file + rename). Records are keyed by
// URL and kept sorted by sequence number.
func appendMetadata(target archive.Target, rec archive.PostRecord) error {
	metaPath := filepath.Join(target.OutputDir, MetadataFileName)

	records, err := loadMetadata(metaPath)
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].URL == rec.URL {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Number < records[j].Number
	})

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(target.OutputDir, MetadataFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp metadata file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metadata file: %w", err)
	}
	if err := os.Rename(tmpName, metaPath); err != nil {
		return fmt.Errorf("replace metadata file: %w", err)
	}
	return nil
}

func loadMetadata(path string) ([]archive.PostRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata file %s: %w", path, err)
	}
	var records []archive.PostRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("metadata file %s is corrupt: %w", path, err)
	}
	return records, nil
}
