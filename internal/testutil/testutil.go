// Package testutil provides shared helpers for tests that read the committed
// conformance corpus.
//
// Each Require helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so tests remain runnable from partial checkouts
// without failing noisily.
//
// Typical usage:
//
//	func TestCorpus(t *testing.T) {
//	    path := testutil.RequireSuite(t, "gru")
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// FixtureDirEnv overrides the corpus location used by ConformanceDir.
const FixtureDirEnv = "NNCONFORM_FIXTURE_DIR"

// RepoRoot walks up from the working directory to the directory holding
// go.mod. It skips the test when no module root is found.
func RepoRoot(tb testing.TB) string {
	tb.Helper()

	dir, err := os.Getwd()
	if err != nil {
		tb.Skipf("working directory unavailable: %v", err)
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			tb.Skip("go.mod not found above the working directory")
			return ""
		}

		dir = parent
	}
}

// ConformanceDir returns the conformance corpus directory: the value of
// NNCONFORM_FIXTURE_DIR when set, else testdata/conformance under the
// repository root.
func ConformanceDir(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv(FixtureDirEnv)
	if dir == "" {
		root := RepoRoot(tb)
		if root == "" {
			return ""
		}

		dir = filepath.Join(root, "testdata", "conformance")
	}

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		tb.Skipf("conformance corpus not available at %q", dir)
		return ""
	}

	return dir
}

// RequireSuite returns the path of the named suite file in the corpus and
// skips the test when it is missing.
func RequireSuite(tb testing.TB, name string) string {
	tb.Helper()

	dir := ConformanceDir(tb)
	if dir == "" {
		return ""
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("suite %q not found in %q", name, dir)

	return ""
}
