package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Options configures the import folder watcher.
type Options struct {
	// SettleDelay is how long a file must stay unchanged before import.
	SettleDelay    time.Duration
	// Extensions lists the importable file extensions, lower case with dot.
	Extensions     []string
	// ImportExisting imports files already in the folder on Run.
	ImportExisting bool
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.Extensions == nil {
		o.Extensions = []string{".epub", ".txt", ".md", ".markdown"}
	}
}

// shouldImport reports whether path names an importable file. Hidden and
// partial download files are skipped.
func (o *Options) shouldImport(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(base)))
}
