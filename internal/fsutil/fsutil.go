// Package fsutil holds the small file and path helpers shared by the CLI, the worker
// and the asset provider.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvCacheDir overrides the cache directory.
const EnvCacheDir = "VIDEO_SERVICE_CACHE_DIR"

const (
	appName                = "video-service"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
)

const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

// CacheDir returns the cache directory: $VIDEO_SERVICE_CACHE_DIR if set, otherwise
// ~/.cache/video-service, otherwise a directory under the system temp dir.
func CacheDir() string {
	if cacheDir := os.Getenv(EnvCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// EnsureDir creates path and its parents if they do not exist.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// FormatDuration renders seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, seconds-float64(minutes*secondsInMinute))
	}

	hours := int(seconds / secondsInHour)
	minutes := int((seconds - float64(hours*secondsInHour)) / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, minutes)
}

// FormatFileSize renders a byte count as "500 B", "2.0 KB", "1.5 MB" or "2.0 GB".
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsImageFile reports whether filename has a pose image extension (png, jpg, jpeg,
// webp), case-insensitively.
func IsImageFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	default:
		return false
	}
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeFilename replaces characters that are invalid in common filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
