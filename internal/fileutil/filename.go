package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename makes a label safe for use in asset filenames
func SanitizeForFilename(input string) string {
	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(sanitized[:50], "-")
	}
	if sanitized == "" {
		return "asset"
	}
	return sanitized
}

// AssetBasename formats YYYY-MM-DD_HHMMSS_<label>
func AssetBasename(label string, at time.Time) string {
	return at.Format("2006-01-02_150405") + "_" + SanitizeForFilename(label)
}

// UniquePath returns dir/base+ext, or dir/base_N+ext for the first N >= 2
// that does not exist yet.
func UniquePath(dir, base, ext string) (string, error) {
	candidate := filepath.Join(dir, base+ext)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	for i := 2; i < 1000; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free filename for %s%s in %s", base, ext, dir)
}
