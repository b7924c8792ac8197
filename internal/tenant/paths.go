// internal/tenant/paths.go
//
// Code validation and deterministic file layout.
//
//	code "demo" → <data_dir>/tenant_demo.db
//
// SQLite in WAL mode keeps two side files next to the database; RemoveFiles
// deletes all three so a failed registration leaves nothing behind.

package tenant

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var codeRE = regexp.MustCompile(`^[a-z0-9]{3,20}$`)

// ValidCode reports whether code is 3–20 lowercase letters or digits.
func ValidCode(code string) bool { return codeRE.MatchString(code) }

// DBPath returns the tenant database file for code.
func DBPath(dataDir, code string) string {
	return filepath.Join(dataDir, "tenant_"+code+".db")
}

// RemoveFiles deletes path and its WAL side files.  Missing files are not
// an error.
func RemoveFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
