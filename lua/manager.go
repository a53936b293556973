package lua

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/netimp/types"
)

// SaveToRecent writes cfg as a new profile in recentDir. The file is named
// after base with an incrementing suffix (base_1.lua, base_2.lua, ...).
// Returns the path to the newly created file.
func SaveToRecent(recentDir, base string, cfg types.ImpairmentConfig, status string) (string, error) {
	if recentDir == "" {
		recentDir = "recent"
	}

	// Create 'recent' directory if it doesn't exist
	if err := os.MkdirAll(recentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recent directory: %w", err)
	}

	baseName := filepath.Base(base)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	if nameWithoutExt == "" || nameWithoutExt == "." {
		nameWithoutExt = "profile"
	}

	// Find unique filename
	counter := 1
	var newPath string
	for {
		newFilename := fmt.Sprintf("%s_%d.lua", nameWithoutExt, counter)
		newPath = filepath.Join(recentDir, newFilename)

		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			break // Found a free name
		}
		counter++
	}

	f, err := os.OpenFile(newPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create profile file: %w", err)
	}
	defer f.Close()

	if err := WriteProfile(f, cfg, status); err != nil {
		return "", fmt.Errorf("failed to write profile: %w", err)
	}

	return newPath, nil
}
