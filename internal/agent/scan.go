package agent

import (
	"os"
	"path/filepath"
	"strings"

	"picpic.transcode/internal/core/domain"
)

// Scan lists the immediate regular files of inputDir whose extension is in
// exts and pairs each with a destination of the same name in outputDir.
// Subdirectories are not descended into.
func Scan(inputDir, outputDir string, exts map[string]bool) ([]domain.WorkItem, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}

	items := make([]domain.WorkItem, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !exts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		items = append(items, domain.WorkItem{
			SourcePath:      filepath.Join(inputDir, name),
			DestinationPath: filepath.Join(outputDir, name),
		})
	}
	return items, nil
}
