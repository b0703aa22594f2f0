package exclude_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"logmirror/internal/logmirror/exclude"
)

func writeFile(t *testing.T, content string) *exclude.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exclude.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write exclusion file: %v", err)
	}
	return exclude.NewStore(path)
}

func TestLoad_BasicMembership(t *testing.T) {
	store := writeFile(t, "web\ndb\n")
	set, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !set.Contains("web") || !set.Contains("db") {
		t.Errorf("expected web and db to be members, got %v", set)
	}
	if set.Contains("cache") {
		t.Error("unexpected member cache")
	}
}

func TestLoad_SkipsBlankAndCommentLinesIndependently(t *testing.T) {
	store := writeFile(t, "# managed by logmirrorctl\n\nweb\n   \n  # trailing comment\ndb\n")
	set, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := exclude.Set{"web": {}, "db": {}}
	if !reflect.DeepEqual(set, want) {
		t.Errorf("expected %v, got %v", want, set)
	}
}

func TestLoad_CommentOnlyFileIsEmptySet(t *testing.T) {
	store := writeFile(t, "# nothing excluded yet\n# add one name per line\n")
	set, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set for comment-only file, got %v", set)
	}
}

func TestLoad_TrimsWhitespaceAndCollapsesDuplicates(t *testing.T) {
	store := writeFile(t, "  web  \nweb\n\tweb\n")
	set, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set) != 1 || !set.Contains("web") {
		t.Errorf("expected single member web, got %v", set)
	}
}

func TestLoad_AbsentFileMeansNoExclusions(t *testing.T) {
	store := exclude.NewStore(filepath.Join(t.TempDir(), "missing.conf"))
	set, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error for absent file, got %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set, got %v", set)
	}
}

func TestLoad_IsIdempotent(t *testing.T) {
	store := writeFile(t, "web\ndb\n")
	first, err := store.Load()
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := store.Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical sets, got %v and %v", first, second)
	}
}
