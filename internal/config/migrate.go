package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// MigrationWarning is a non-fatal diagnostic raised while migrating a
// legacy text document into its canonical YAML form.
type MigrationWarning struct {
	File    string
	Message string
}

// migrateMangaEquivalentsTXT reads the legacy line-oriented format:
//
//	Canonical Title = Alias One, Alias Two
//
// one group per non-blank, non-comment ("#"-prefixed) line. Malformed
// lines (no "=" separator) are skipped with a warning rather than
// aborting the whole migration.
func migrateMangaEquivalentsTXT(path string) (MangaEquivalentsDocument, []MigrationWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return MangaEquivalentsDocument{}, nil, err
	}
	defer f.Close()

	var doc MangaEquivalentsDocument
	var warnings []MigrationWarning

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx == -1 {
			warnings = append(warnings, MigrationWarning{
				File:    "manga_equivalents.txt",
				Message: formatLineWarning(lineNo, "expected 'Canonical = alias, alias'"),
			})
			continue
		}
		canonical := strings.TrimSpace(line[:idx])
		if canonical == "" {
			warnings = append(warnings, MigrationWarning{
				File:    "manga_equivalents.txt",
				Message: formatLineWarning(lineNo, "empty canonical"),
			})
			continue
		}
		var aliases []string
		for _, alias := range strings.Split(line[idx+1:], ",") {
			alias = strings.TrimSpace(alias)
			if alias != "" {
				aliases = append(aliases, alias)
			}
		}
		doc.Groups = append(doc.Groups, EquivalenceGroup{Canonical: canonical, Aliases: aliases})
	}
	if err := scanner.Err(); err != nil {
		return doc, warnings, err
	}
	return doc, warnings, nil
}

// migrateSourcePriorityTXT reads one source name per non-blank,
// non-comment line, in file order.
func migrateSourcePriorityTXT(path string) (SourcePriorityDocument, []MigrationWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return SourcePriorityDocument{}, nil, err
	}
	defer f.Close()

	var doc SourcePriorityDocument
	var warnings []MigrationWarning

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		doc.Sources = append(doc.Sources, line)
	}
	if err := scanner.Err(); err != nil {
		return doc, warnings, err
	}
	return doc, warnings, nil
}

func formatLineWarning(lineNo int, message string) string {
	return "line " + strconv.Itoa(lineNo) + ": " + message
}
