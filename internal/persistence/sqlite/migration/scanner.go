package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// migrationFilePattern matches {version}_{description}.sql. Version must be
// numeric (001, 002, ...); the description may contain letters, digits,
// underscores and hyphens.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// ScanDir loads a registry from the migration files in dir.
func ScanDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, NewFileSystemError(dir, "scan directory", err)
	}
	if !info.IsDir() {
		return nil, NewFileSystemError(dir, "scan directory", fmt.Errorf("not a directory"))
	}
	return ScanFS(os.DirFS(dir), ".")
}

// ScanFS loads a registry from the migration files in dir inside fsys.
// Non-.sql files and subdirectories are ignored.
func ScanFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, NewFileSystemError(dir, "read directory", err)
	}

	var steps []Step
	seen := make(map[int]string) // version -> filename for duplicate detection

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		filePath := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil, NewFileSystemError(filePath, "read file", err)
		}

		step, err := ParseFile(entry.Name(), string(content))
		if err != nil {
			return nil, err
		}
		step.Source = filePath

		if existing, ok := seen[step.Version]; ok {
			return nil, fmt.Errorf("%w: version %d found in both %s and %s",
				ErrInvalidRegistry, step.Version, existing, entry.Name())
		}
		seen[step.Version] = entry.Name()
		steps = append(steps, step)
	}

	// Directory order is lexical, which misorders unpadded versions (10 < 9).
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Version < steps[j].Version
	})

	return NewRegistry(steps...)
}

// ParseFile builds a step from a migration file's name and content.
func ParseFile(filename, content string) (Step, error) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return Step{}, fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'",
			ErrInvalidMigrationFile, filename)
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return Step{}, fmt.Errorf("%w: version '%s' in filename '%s' is not a valid number",
			ErrInvalidMigrationFile, matches[1], filename)
	}

	statements := splitStatements(content)
	if len(statements) == 0 {
		return Step{}, fmt.Errorf("%w: %s contains no SQL statements", ErrInvalidMigrationFile, filename)
	}
	if err := checkUnmatchedParentheses(strings.Join(statements, " ")); err != nil {
		return Step{}, fmt.Errorf("%s: %w", filename, err)
	}

	// Prefer a "-- Description:" header over the filename.
	description := extractDescription(content)
	if description == "" {
		description = strings.ReplaceAll(matches[2], "_", " ")
	}

	return Step{
		Version:     version,
		Description: description,
		Statements:  statements,
	}, nil
}

// splitStatements splits SQL content on semicolons and drops comment-only
// lines. Bodies containing semicolons (triggers) are not supported.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if clean := strings.TrimSpace(strings.Join(lines, "\n")); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// checkUnmatchedParentheses validates parentheses are properly matched
func checkUnmatchedParentheses(sql string) error {
	count := 0
	for _, char := range sql {
		switch char {
		case '(':
			count++
		case ')':
			count--
			if count < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
		}
	}
	if count != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

// extractDescription reads "-- Description: ..." from the leading comment block.
func extractDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			if description := strings.TrimSpace(rest); description != "" {
				return description
			}
		}
	}
	return ""
}
