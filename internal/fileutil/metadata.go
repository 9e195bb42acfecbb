// Package fileutil provides asset naming and sidecar metadata for the photo
// library.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AssetMetadata is the sidecar written alongside each saved photo or video.
type AssetMetadata struct {
	Version   string    `json:"version"`
	Kind      string    `json:"kind"` // "photo" | "video"
	CreatedAt time.Time `json:"created_at"`
	File      string    `json:"file"`
	Source    string    `json:"source,omitempty"` // original path for videos
	Bytes     int64     `json:"bytes"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Quality   int       `json:"jpeg_quality,omitempty"`
}

// WriteMetadata writes a <basepath>.meta.json sidecar next to assetPath
// using a temp file and rename.
func WriteMetadata(assetPath string, meta *AssetMetadata) error {
	metaPath := MetadataPath(assetPath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for assetPath
func ReadMetadata(assetPath string) (*AssetMetadata, error) {
	data, err := os.ReadFile(MetadataPath(assetPath))
	if err != nil {
		return nil, err
	}
	var meta AssetMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPath returns <basepath>.meta.json for an asset path.
func MetadataPath(assetPath string) string {
	ext := filepath.Ext(assetPath)
	return assetPath[:len(assetPath)-len(ext)] + ".meta.json"
}
