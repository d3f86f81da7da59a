package harvest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/records"
)

// FilePrefix and FileSuffix frame every harvest output file name.
const (
	FilePrefix = "Extracao_"
	FileSuffix = "_backup.json"
)

// FileName returns the output file name for a broker's harvest taken at t:
// Extracao_<Broker>_<YYYY-MM-DD>_<HH-MM-SS>_backup.json. Spaces in the broker
// name become underscores.
func FileName(broker string, t time.Time) string {
	name := strings.Join(strings.Fields(broker), "_")
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	return FilePrefix + name + "_" + t.Format("2006-01-02_15-04-05") + FileSuffix
}

// WriteFile writes batches to dir as indented JSON and returns the file path.
// The file is written under a temporary name and renamed into place so a
// concurrent sync never reads a partial file.
func WriteFile(dir, broker string, t time.Time, batches []records.Batch) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if batches == nil {
		batches = []records.Batch{}
	}

	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batches: %w", err)
	}

	path := filepath.Join(dir, FileName(broker, t))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}
	return path, nil
}
