// Package report persists extraction outcomes as markdown files and
// reloads the accepted-username registry from them at batch start. The
// files double as the registry's storage: every numbered entry in the
// verified and review lists is a previously seen username.
package report

import (
	"bufio"
	"context"
	"os"
	"regexp"

	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/ports"
)

// Entry patterns for the two list files. Loading is lenient: lines that
// match neither pattern are headers, separators, or hand-edits, and are
// skipped without complaint.
var (
	verifiedLine = regexp.MustCompile(`^\d+\.\s+(\w+(?:[._]\w+)*)\s+-\s+https?://`)
	reviewLine   = regexp.MustCompile(`^\d+\.\s+\*\*(\w+(?:[._]\w+)*)\*\*\s+-\s+`)
)

// Store reads and writes the three markdown artifacts of a run: the
// verified list, the review list, and the summary report.
type Store struct {
	verifiedPath string
	reviewPath   string
	reportPath   string
}

// NewStore creates a Store over the given file paths.
func NewStore(verifiedPath, reviewPath, reportPath string) *Store {
	return &Store{
		verifiedPath: verifiedPath,
		reviewPath:   reviewPath,
		reportPath:   reportPath,
	}
}

// Load materializes the registry from the verified and review lists.
// Missing files yield an empty registry; registry loading is best-effort
// duplicate avoidance, so unreadable entries are skipped, never surfaced.
func (s *Store) Load(ctx context.Context) (*domain.Registry, error) {
	registry := domain.NewRegistry(nil)
	s.loadFile(s.verifiedPath, verifiedLine, registry)
	s.loadFile(s.reviewPath, reviewLine, registry)
	return registry, nil
}

func (s *Store) loadFile(path string, pattern *regexp.Regexp, registry *domain.Registry) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := pattern.FindStringSubmatch(scanner.Text()); m != nil {
			registry.Add(m[1])
		}
	}
}

// countEntries returns how many numbered entries a list file already
// holds, so appended entries continue the numbering.
func countEntries(path string, pattern *regexp.Regexp) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if pattern.MatchString(scanner.Text()) {
			count++
		}
	}
	return count
}

// Compile-time verification that Store implements RegistrySource.
var _ ports.RegistrySource = (*Store)(nil)
