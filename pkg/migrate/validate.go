package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)

// Validate checks every .sql file in fsys: timestamped snake_case names,
// unique versions, and both goose directions present.
func Validate(fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	versions := make(map[string]string, len(files))
	for _, file := range files {
		name := path.Base(file)
		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("%s: want YYYYMMDDHHMMSS_snake_name.sql", name)
		}
		if other, dup := versions[match[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, match[1], other)
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return err
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("%s: missing %q", name, marker)
			}
		}
	}
	return nil
}

// latestVersion returns the highest version in fsys, or "" when it is empty.
func latestVersion(fsys fs.FS) string {
	files, _ := fs.Glob(fsys, "*.sql")
	latest := ""
	for _, file := range files {
		if m := migrationName.FindStringSubmatch(path.Base(file)); m != nil && m[1] > latest {
			latest = m[1]
		}
	}
	return latest
}
