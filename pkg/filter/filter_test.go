package filter_test

import (
	"testing"

	"github.com/filesentry/filesentry/pkg/filter"
	"github.com/filesentry/filesentry/pkg/types"
)

func TestMatcher_Patterns(t *testing.T) {
	tests := []struct {
		name  string
		cfg   types.WatcherConfig
		path  string
		isDir bool
		want  bool
	}{
		{
			name: "include match",
			cfg:  types.WatcherConfig{Patterns: []string{"*.py"}},
			path: "/a/b/file.py",
			want: true,
		},
		{
			name: "include no match",
			cfg:  types.WatcherConfig{Patterns: []string{"*.py"}},
			path: "/a/b/file.txt",
			want: false,
		},
		{
			name: "exclude wins",
			cfg:  types.WatcherConfig{Patterns: []string{"*.py"}, ExcludePatterns: []string{"*.tmp"}},
			path: "/a/b/file.tmp",
			want: false,
		},
		{
			name: "include survives exclude",
			cfg:  types.WatcherConfig{Patterns: []string{"*.py"}, ExcludePatterns: []string{"*.tmp"}},
			path: "/a/b/file.py",
			want: true,
		},
		{
			name: "empty includes match everything",
			cfg:  types.WatcherConfig{},
			path: "/a/b/anything.bin",
			want: true,
		},
		{
			name: "empty includes still honor excludes",
			cfg:  types.WatcherConfig{ExcludePatterns: []string{"*.log"}},
			path: "/var/app/debug.log",
			want: false,
		},
		{
			name: "multiple includes",
			cfg:  types.WatcherConfig{Patterns: []string{"*.go", "*.js"}},
			path: "/src/app.js",
			want: true,
		},
		{
			name: "question mark",
			cfg:  types.WatcherConfig{Patterns: []string{"test?.go"}},
			path: "/src/test1.go",
			want: true,
		},
		{
			name: "question mark two chars",
			cfg:  types.WatcherConfig{Patterns: []string{"test?.go"}},
			path: "/src/test12.go",
			want: false,
		},
		{
			name: "character class",
			cfg:  types.WatcherConfig{Patterns: []string{"test[0-9].go"}},
			path: "/src/test5.go",
			want: true,
		},
		{
			name: "double wildcard path pattern",
			cfg:  types.WatcherConfig{Patterns: []string{"**/src/*.go"}, Recursive: true},
			path: "/repo/src/main.go",
			want: true,
		},
		{
			name: "directory excluded by default",
			cfg:  types.WatcherConfig{Patterns: []string{"*"}},
			path: "/a/b/subdir",
			isDir: true,
			want: false,
		},
		{
			name: "directory included when configured",
			cfg:  types.WatcherConfig{Patterns: []string{"*"}, IncludeDirectories: true},
			path: "/a/b/subdir",
			isDir: true,
			want: true,
		},
		{
			name: "exclude matches full path",
			cfg:  types.WatcherConfig{ExcludePatterns: []string{"**/node_modules/**"}},
			path: "/app/node_modules/pkg/index.js",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := filter.New(tt.cfg)
			if err != nil {
				t.Fatalf("failed to create matcher: %v", err)
			}

			if got := m.Matches(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Matches(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestMatcher_SpecificFiles(t *testing.T) {
	cfg := types.WatcherConfig{
		SpecificFiles:   []string{"/a/b/only.txt"},
		Patterns:        []string{"*.py"},
		ExcludePatterns: []string{"*.txt"},
	}

	m, err := filter.New(cfg)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	if !m.Matches("/a/b/only.txt", false) {
		t.Error("expected the specific file to match regardless of patterns")
	}
	if m.Matches("/a/b/other.py", false) {
		t.Error("expected include patterns to be ignored in specific-file mode")
	}
	if m.Matches("/a/b/only.txt.bak", false) {
		t.Error("expected near-miss path not to match")
	}
}

func TestMatcher_IndependentOfRecursiveFlag(t *testing.T) {
	// Pattern evaluation is purely path-based; the recursive flag only
	// controls which paths the engine watches, so two matchers differing
	// only in that flag must agree on every path.
	base := types.WatcherConfig{Patterns: []string{"**/*.txt"}}
	flat := base
	deep := base
	deep.Recursive = true

	mFlat, err := filter.New(flat)
	if err != nil {
		t.Fatal(err)
	}
	mDeep, err := filter.New(deep)
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/w/a.txt", "/w/sub/b.txt", "/w/sub/c.log"} {
		if got, want := mFlat.Matches(path, false), mDeep.Matches(path, false); got != want {
			t.Errorf("Matches(%q) differs with recursive flag: %v vs %v", path, got, want)
		}
	}
}

func TestMatcher_MalformedPattern(t *testing.T) {
	_, err := filter.New(types.WatcherConfig{Patterns: []string{"bad[class"}})
	if err == nil {
		t.Error("expected an error for an unclosed character class")
	}

	_, err = filter.New(types.WatcherConfig{ExcludePatterns: []string{"bad[class"}})
	if err == nil {
		t.Error("expected an error for a malformed exclude pattern")
	}
}

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"./src/*.go", "src/*.go"},
		{"build/", "build"},
		{"a\\b\\*.txt", "a/b/*.txt"},
	}

	for _, tt := range tests {
		if got := filter.NormalizePattern(tt.in); got != tt.want {
			t.Errorf("NormalizePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsGlobPattern(t *testing.T) {
	if !filter.IsGlobPattern("*.go") {
		t.Error("expected *.go to be a glob pattern")
	}
	if filter.IsGlobPattern("main.go") {
		t.Error("expected main.go not to be a glob pattern")
	}
}
