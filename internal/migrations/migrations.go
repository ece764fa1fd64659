package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// GetInitialSchema returns the initial database schema
func GetInitialSchema() (string, error) {
	content, err := files.ReadFile("sql/001_initial_schema.sql")
	if err != nil {
		return "", fmt.Errorf("could not read initial schema: %w", err)
	}
	return string(content), nil
}

// All returns every migration in file name order, joined into one script.
func All() (string, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return "", fmt.Errorf("could not list migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		content, err := files.ReadFile("sql/" + name)
		if err != nil {
			return "", fmt.Errorf("could not read migration %s: %w", name, err)
		}
		b.Write(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
