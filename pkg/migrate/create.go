package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

const migrationTemplate = `-- %[1]s
-- +goose Up
-- +goose StatementBegin
SELECT 'up';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 'down';
-- +goose StatementEnd
`

// NewMigrationFile writes an empty goose migration into dir. The version is
// the timestamp at now, bumped past the newest existing version so files
// created in the same second still sort after it.
func NewMigrationFile(dir, name string, now time.Time) (string, error) {
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	version := now.UTC().Format(versionLayout)
	if latest := latestVersion(os.DirFS(dir)); latest >= version {
		next, err := strconv.ParseInt(latest, 10, 64)
		if err != nil {
			return "", err
		}
		version = strconv.FormatInt(next+1, 10)
	}

	file := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("migration %s already exists", file)
		}
		return "", err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", err
	}
	return file, nil
}

func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	return b.String()
}
