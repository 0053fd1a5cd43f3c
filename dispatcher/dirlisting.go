package dispatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

// dirEntry is one row of the directory listing written for SENDDIR,
// marshaled with gocsv rather than shelling out to `ls`.
type dirEntry struct {
	Name    string `csv:"name"`
	SizeB   int64  `csv:"size_bytes"`
	Mode    string `csv:"mode"`
	ModTime string `csv:"modified"`
}

// writeDirListing lists dir and writes it as dir.txt inside dir, in the
// same directory SENDFILE will later read it back from. full selects
// whether size/mode/modified columns are populated (SENDDIR FULL) or the
// listing carries names only (plain SENDDIR).
func writeDirListing(dir string, full bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	rows := make([]*dirEntry, 0, len(entries))
	for _, e := range entries {
		row := &dirEntry{Name: e.Name()}
		if full {
			info, err := e.Info()
			if err == nil {
				row.SizeB = info.Size()
				row.Mode = info.Mode().String()
				row.ModTime = info.ModTime().Format(time.RFC3339)
			}
		}
		rows = append(rows, row)
	}

	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "dir.txt"), []byte(out), 0o644)
}
