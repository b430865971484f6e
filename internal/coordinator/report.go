package coordinator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// WriteReport publishes the report at path atomically: readers see either
// the previous file or the complete report, never a partial one.
func WriteReport(path string, report *types.Report) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".psearch-report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	tmpName := tmp.Name()

	_, err = report.WriteTo(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o644)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
