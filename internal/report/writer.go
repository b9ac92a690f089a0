package report

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/beyourahi/extract-usernames/internal/domain"
)

const timestampLayout = "January 2, 2006 at 3:04 PM"

// Append distributes a batch's results between the verified and review
// lists, appending in batch order. Exact duplicates are dropped, the
// first occurrence wins when one batch produced the same username twice,
// and near-duplicates always land on the review list even when their
// status is verified. Returns how many entries each list gained.
func (s *Store) Append(results []domain.FinalResult) (newVerified, newReview int, err error) {
	seen := make(map[string]struct{})
	var verified, review []domain.FinalResult

	for _, r := range results {
		if r.IsDuplicate {
			continue
		}
		if r.Username == "" {
			if r.Status == domain.StatusFailed || r.Status == domain.StatusError {
				review = append(review, r)
			}
			continue
		}
		if _, ok := seen[r.Username]; ok {
			continue
		}
		seen[r.Username] = struct{}{}

		switch {
		case (r.Status == domain.StatusVerified || r.Status == domain.StatusUnverified) && !r.IsNearDuplicate:
			verified = append(verified, r)
		case r.Status == domain.StatusReview || r.Status == domain.StatusError || r.IsNearDuplicate:
			review = append(review, r)
		}
	}

	if len(verified) > 0 {
		if err := s.appendVerified(verified); err != nil {
			return 0, 0, err
		}
	}
	if len(review) > 0 {
		if err := s.appendReview(review); err != nil {
			return 0, 0, err
		}
	}

	return len(verified), len(review), nil
}

// appendVerified writes accepted usernames as numbered profile links.
func (s *Store) appendVerified(items []domain.FinalResult) error {
	offset := countEntries(s.verifiedPath, verifiedLine)

	f, err := openListFile(s.verifiedPath, "# Verified Instagram Usernames")
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for i, item := range items {
		tier := item.Tier
		if tier == "" {
			tier = domain.TierMed
		}
		fmt.Fprintf(w, "%d. %s - https://www.instagram.com/%s [%s %.0f%%]\n",
			offset+i+1, item.Username, item.Username, tier, item.Confidence)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write verified list: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return updateHeader(s.verifiedPath, offset+len(items))
}

// appendReview writes review-bound results with enough context for a
// human to decide: source image, confidence, method, and the
// near-duplicate or fault detail that routed the entry here.
func (s *Store) appendReview(items []domain.FinalResult) error {
	offset := countEntries(s.reviewPath, reviewLine)

	f, err := openListFile(s.reviewPath, "# Usernames Needing Manual Review")
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for i, item := range items {
		username, url := item.Username, "https://www.instagram.com/"+item.Username
		if username == "" {
			username, url = "FAILED", "N/A"
		}

		fmt.Fprintf(w, "%d. **%s** - %s\n", offset+i+1, username, url)
		fmt.Fprintf(w, "   - **Image:** `%s`\n", item.Image)
		fmt.Fprintf(w, "   - Confidence: %.0f%% | Method: %s\n", item.Confidence, item.Method)
		if item.IsNearDuplicate {
			fmt.Fprintf(w, "   - **Near-duplicate of:** %s (edit distance: %d)\n",
				item.SimilarTo, item.EditDistance)
		}
		if item.Diagnostic != "" {
			fmt.Fprintf(w, "   - **Fault:** %s\n", item.Diagnostic)
		}
		if len(item.Alternatives) > 0 {
			fmt.Fprintf(w, "   - Alternatives: %s\n", formatAlternatives(item.Alternatives))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write review list: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return updateHeader(s.reviewPath, offset+len(items))
}

// openListFile opens a list file for appending, writing the header block
// first when the file is new or empty.
func openListFile(path, title string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		header := fmt.Sprintf("%s\n\n**Last Updated:** %s\n\n---\n\n",
			title, time.Now().Format(timestampLayout))
		if _, err := f.WriteString(header); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

// updateHeader rewrites the Last Updated and Total lines in a list file's
// header, inserting the Total line on first update.
func updateHeader(path string, total int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	sawTotal := false
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "**Last Updated:**"):
			lines[i] = "**Last Updated:** " + time.Now().Format(timestampLayout)
		case strings.HasPrefix(line, "**Total:**"):
			lines[i] = fmt.Sprintf("**Total:** %d", total)
			sawTotal = true
		}
	}

	if !sawTotal {
		for i, line := range lines {
			if strings.HasPrefix(line, "**Last Updated:**") {
				lines = append(lines[:i+1], append([]string{fmt.Sprintf("**Total:** %d", total)}, lines[i+1:]...)...)
				break
			}
		}
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

func formatAlternatives(alts map[string]int) string {
	keys := make([]string, 0, len(alts))
	for k := range alts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s (x%d)", k, alts[k]))
	}
	return strings.Join(parts, ", ")
}

// RunStats carries the figures the summary report needs.
type RunStats struct {
	Total          int
	Verified       int
	Unverified     int
	Review         int
	Failed         int
	Errors         int
	Duplicates     int
	NearDuplicates int
	NewVerified    int
	NewReview      int
	Methods        map[string]int
	AvgConfidence  float64
	Elapsed        time.Duration
	Workers        int
	InputDir       string
	Provider       string
	Model          string
	HighTierFloor  float64
	ReviewFloor    float64
	MaxDistance    int
}

// WriteReport overwrites the summary report for the latest run.
func (s *Store) WriteReport(stats RunStats) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Instagram Username Extraction Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n---\n\n", time.Now().Format(timestampLayout))

	fmt.Fprintf(&b, "## Input\n\n")
	fmt.Fprintf(&b, "- **Directory:** `%s`\n", stats.InputDir)
	fmt.Fprintf(&b, "- **Total Images:** %d\n", stats.Total)
	fmt.Fprintf(&b, "- **Workers:** %d\n\n---\n\n", stats.Workers)

	total := stats.Total
	if total < 1 {
		total = 1
	}
	fmt.Fprintf(&b, "## Results Summary\n\n")
	fmt.Fprintf(&b, "- **Verified:** %d (%.1f%%)\n", stats.Verified, pct(stats.Verified, total))
	fmt.Fprintf(&b, "- **Unverified:** %d (%.1f%%)\n", stats.Unverified, pct(stats.Unverified, total))
	fmt.Fprintf(&b, "- **Needs Review:** %d (%.1f%%)\n", stats.Review, pct(stats.Review, total))
	fmt.Fprintf(&b, "- **Failed:** %d (%.1f%%)\n", stats.Failed+stats.Errors, pct(stats.Failed+stats.Errors, total))
	fmt.Fprintf(&b, "- **Duplicates:** %d (%.1f%%)\n", stats.Duplicates, pct(stats.Duplicates, total))
	fmt.Fprintf(&b, "- **Near-Duplicates:** %d (%.1f%%)\n\n---\n\n", stats.NearDuplicates, pct(stats.NearDuplicates, total))

	fmt.Fprintf(&b, "## New Entries Added\n\n")
	fmt.Fprintf(&b, "- **Verified List:** %d new usernames\n", stats.NewVerified)
	fmt.Fprintf(&b, "- **Review List:** %d new usernames\n\n---\n\n", stats.NewReview)

	if len(stats.Methods) > 0 {
		fmt.Fprintf(&b, "## Consensus Methods Distribution\n\n")
		for _, m := range sortedMethods(stats.Methods) {
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", m, stats.Methods[m], pct(stats.Methods[m], total))
		}
		fmt.Fprintf(&b, "\n---\n\n")
	}

	fmt.Fprintf(&b, "## Performance\n\n")
	fmt.Fprintf(&b, "- **Total Time:** %.2f seconds\n", stats.Elapsed.Seconds())
	fmt.Fprintf(&b, "- **Average Time per Image:** %.2f seconds\n", stats.Elapsed.Seconds()/float64(total))
	fmt.Fprintf(&b, "- **Average Confidence:** %.1f%%\n\n---\n\n", stats.AvgConfidence)

	fmt.Fprintf(&b, "## Pipeline Configuration\n\n")
	fmt.Fprintf(&b, "- **Architecture:** VLM-Primary Dual-Engine\n")
	fmt.Fprintf(&b, "- **Primary Engine:** %s (%s)\n", stats.Provider, stats.Model)
	fmt.Fprintf(&b, "- **Confidence Tiers:** HIGH >=%.0f%% | MED >=%.0f%% | REVIEW <%.0f%%\n",
		stats.HighTierFloor, stats.ReviewFloor, stats.ReviewFloor)
	fmt.Fprintf(&b, "- **Near-Duplicate Detection:** Levenshtein distance <=%d\n\n---\n\n", stats.MaxDistance)

	fmt.Fprintf(&b, "## Output Files\n\n")
	fmt.Fprintf(&b, "- **Verified Usernames:** `%s`\n", s.verifiedPath)
	fmt.Fprintf(&b, "- **Needs Review:** `%s`\n", s.reviewPath)
	fmt.Fprintf(&b, "- **This Report:** `%s`\n", s.reportPath)

	if err := os.WriteFile(s.reportPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

// sortedMethods orders method tags by descending count, ties broken by
// name for stable report output.
func sortedMethods(methods map[string]int) []string {
	keys := make([]string, 0, len(methods))
	for k := range methods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if methods[keys[i]] != methods[keys[j]] {
			return methods[keys[i]] > methods[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
