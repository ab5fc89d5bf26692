package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// MigrationFile is one goose SQL file found on disk.
type MigrationFile struct {
	Version string
	Name    string
	Path    string
}

// ListMigrations returns the SQL migrations in dir ordered by version.
// Files that do not follow the naming scheme are skipped and reported in the
// returned error alongside the valid files.
func ListMigrations(dir string) ([]MigrationFile, error) {
	files, naming, err := scanDir(dir)
	if err != nil {
		return nil, err
	}
	return files, naming
}

func scanDir(dir string) ([]MigrationFile, error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var files []MigrationFile
	var naming error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			naming = multierr.Append(naming, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name()))
			continue
		}
		files = append(files, MigrationFile{Version: m[1], Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, naming, nil
}

// ValidateDir checks every migration in dir and reports all problems at once:
// bad names, duplicate versions, missing Up/Down sections and unbalanced
// StatementBegin/StatementEnd markers.
func ValidateDir(dir string) error {
	files, errs, err := scanDir(dir)
	if err != nil {
		return err
	}

	seen := map[string]string{}
	for _, f := range files {
		if prev, ok := seen[f.Version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", f.Version, prev, f.Name))
			continue
		}
		seen[f.Version] = f.Name
		errs = multierr.Append(errs, validateFile(f))
	}
	return errs
}

func validateFile(f MigrationFile) error {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", f.Path, err)
	}
	txt := string(b)

	var errs error
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(txt, marker) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", f.Name, marker))
		}
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", f.Name, begins, ends))
	}
	return errs
}
