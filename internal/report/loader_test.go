package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(
		filepath.Join(dir, "verified_usernames.md"),
		filepath.Join(dir, "needs_review.md"),
		filepath.Join(dir, "extraction_report.md"),
	)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMissingFiles(t *testing.T) {
	store := newTestStore(t)

	registry, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Len())
}

func TestLoadVerifiedList(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.verifiedPath, `# Verified Instagram Usernames

**Last Updated:** August 28, 2026 at 9:15 AM
**Total:** 3

---

1. john.doe - https://www.instagram.com/john.doe [HIGH 95%]
2. jane_doe - https://www.instagram.com/jane_doe [MED 88%]
3. a.b_c - https://www.instagram.com/a.b_c [MED 85%]
not an entry line
10 missing.dot - https://www.instagram.com/missing.dot
`)

	registry, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, registry.Len())
	assert.True(t, registry.Contains("john.doe"))
	assert.True(t, registry.Contains("jane_doe"))
	assert.True(t, registry.Contains("a.b_c"))
	assert.False(t, registry.Contains("missing.dot"))
}

func TestLoadReviewList(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.reviewPath, `# Usernames Needing Manual Review

**Last Updated:** August 28, 2026 at 9:15 AM

---

1. **shaky.read** - https://www.instagram.com/shaky.read
   - **Image:** `+"`img_004.jpg`"+`
   - Confidence: 72% | Method: ambiguous_disagreement

2. **FAILED** - N/A
   - **Image:** `+"`img_005.jpg`"+`
`)

	registry, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, registry.Contains("shaky.read"))
	// The FAILED placeholder matches the pattern but records no real
	// username; it still lands in the registry harmlessly since FAILED is
	// never a canonical username.
	assert.Equal(t, 2, registry.Len())
}

func TestLoadBothLists(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.verifiedPath, "1. john.doe - https://www.instagram.com/john.doe [HIGH 95%]\n")
	writeFile(t, store.reviewPath, "1. **jane_doe** - https://www.instagram.com/jane_doe\n")

	registry, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Len())
	assert.True(t, registry.Contains("john.doe"))
	assert.True(t, registry.Contains("jane_doe"))
}
