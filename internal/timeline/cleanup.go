package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepReport lists what SweepPartials found.
type SweepReport struct {
	Removed []string
	Kept    []string
	Errors  []string
}

// SweepPartials removes partial outputs and encoder work directories left in dir by
// renders that died before finishing. Entries younger than minAge are kept, since they
// may belong to a render that is still running.
func SweepPartials(dir string, minAge time.Duration, now time.Time) (*SweepReport, error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return &SweepReport{}, nil
		}

		return nil, fmt.Errorf("failed to read output dir %s: %w", dir, readErr)
	}

	report := &SweepReport{}

	for _, entry := range entries {
		name := entry.Name()
		if !isLeftover(name) {
			continue
		}

		path := filepath.Join(dir, name)

		info, infoErr := entry.Info()
		if infoErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, infoErr))

			continue
		}

		if now.Sub(info.ModTime()) < minAge {
			report.Kept = append(report.Kept, path)

			continue
		}

		removeErr := os.RemoveAll(path)
		if removeErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, removeErr))

			continue
		}

		report.Removed = append(report.Removed, path)
	}

	return report, nil
}

func isLeftover(name string) bool {
	if !strings.HasPrefix(name, ".") {
		return false
	}

	return strings.HasSuffix(name, outputExt+partialSuffix) || strings.HasPrefix(name, ".segments-")
}
