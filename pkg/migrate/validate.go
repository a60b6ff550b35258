package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks that every SQL file in dir is a well-formed goose
// migration: timestamped filename, unique version, Up and Down sections.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := sqlFileRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("migration %q does not match YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := versions[match[1]]; dup {
			return fmt.Errorf("version %s used by both %q and %q", match[1], prev, name)
		}
		versions[match[1]] = name

		if err := checkGooseSections(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func checkGooseSections(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	for _, section := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(string(contents), section) {
			return fmt.Errorf("migration %q is missing %q", filepath.Base(path), section)
		}
	}
	return nil
}
