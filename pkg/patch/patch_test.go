package patch

import (
	"testing"
)

type memFS struct {
	files map[string]string
}

func newMemFS(seed map[string]string) *memFS {
	files := make(map[string]string, len(seed))
	for k, v := range seed {
		files[k] = v
	}
	return &memFS{files: files}
}

func (m *memFS) ReadFile(path string) (string, error) {
	content, ok := m.files[path]
	if !ok {
		return "", &notFoundError{path}
	}
	return content, nil
}

func (m *memFS) WriteFile(path string, content string) error {
	m.files[path] = content
	return nil
}

func (m *memFS) Remove(path string) error {
	if _, ok := m.files[path]; !ok {
		return &notFoundError{path}
	}
	delete(m.files, path)
	return nil
}

func (m *memFS) MkdirAll(dir string) error { return nil }

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return "not found: " + e.path }

func TestParseRejectsPatchWithoutMarkers(t *testing.T) {
	if _, err := Parse("*** Add File: a.txt\n+hi\n"); err == nil {
		t.Error("expected error for missing Begin/End markers")
	}
}

func TestParseAddFile(t *testing.T) {
	text := "*** Begin Patch\n*** Add File: greeting.txt\n+hello\n+world\n*** End Patch\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(p.Files))
	}
	f := p.Files[0]
	if f.Action != ActionAdd || f.Path != "greeting.txt" {
		t.Errorf("got %+v", f)
	}
	if f.Content != "hello\nworld" {
		t.Errorf("Content = %q, want %q", f.Content, "hello\nworld")
	}
}

func TestParseDeleteFile(t *testing.T) {
	text := "*** Begin Patch\n*** Delete File: old.txt\n*** End Patch\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Files) != 1 || p.Files[0].Action != ActionDelete || p.Files[0].Path != "old.txt" {
		t.Errorf("got %+v", p.Files)
	}
}

func TestParseUpdateFileWithHunk(t *testing.T) {
	text := "*** Begin Patch\n" +
		"*** Update File: main.go\n" +
		"@@ func main() {\n" +
		" \tfmt.Println(\"start\")\n" +
		"-\tfmt.Println(\"old\")\n" +
		"+\tfmt.Println(\"new\")\n" +
		"*** End Patch\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := p.Files[0]
	if f.Action != ActionUpdate || len(f.Hunks) != 1 {
		t.Fatalf("got %+v", f)
	}
	if len(f.Hunks[0].Lines) != 3 {
		t.Errorf("len(Lines) = %d, want 3", len(f.Hunks[0].Lines))
	}
}

func TestParseRoundTripsThroughRender(t *testing.T) {
	text := "*** Begin Patch\n" +
		"*** Add File: a.txt\n" +
		"+one\n" +
		"+two\n" +
		"*** Update File: b.txt\n" +
		"@@ context line\n" +
		"  keep\n" +
		"-remove\n" +
		"+add\n" +
		"*** Delete File: c.txt\n" +
		"*** End Patch\n"

	p1, err := Parse(text)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	rendered := Render(p1)
	p2, err := Parse(rendered)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if len(p1.Files) != len(p2.Files) {
		t.Fatalf("file count changed across round trip: %d vs %d", len(p1.Files), len(p2.Files))
	}
	for i := range p1.Files {
		a, b := p1.Files[i], p2.Files[i]
		if a.Action != b.Action || a.Path != b.Path || a.Content != b.Content || len(a.Hunks) != len(b.Hunks) {
			t.Errorf("file %d changed across round trip: %+v vs %+v", i, a, b)
		}
	}
}

func TestApplyAddFileCreatesContent(t *testing.T) {
	fs := newMemFS(nil)
	p := &Patch{Files: []FileOp{{Action: ActionAdd, Path: "new.txt", Content: "hello"}}}

	summaries, err := Apply(fs, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].String() != "A new.txt" {
		t.Errorf("summaries = %v", summaries)
	}
	if fs.files["new.txt"] != "hello\n" {
		t.Errorf("content = %q, want trailing newline added", fs.files["new.txt"])
	}
}

func TestApplyDeleteFileRemovesIt(t *testing.T) {
	fs := newMemFS(map[string]string{"gone.txt": "bye\n"})
	p := &Patch{Files: []FileOp{{Action: ActionDelete, Path: "gone.txt"}}}

	summaries, err := Apply(fs, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].String() != "D gone.txt" {
		t.Errorf("summaries = %v", summaries)
	}
	if _, ok := fs.files["gone.txt"]; ok {
		t.Error("expected gone.txt to be removed")
	}
}

func TestApplyUpdateFileAppliesHunkInOrder(t *testing.T) {
	original := "package main\n\nfunc main() {\n\tfmt.Println(\"start\")\n\tfmt.Println(\"old\")\n}\n"
	fs := newMemFS(map[string]string{"main.go": original})

	p := &Patch{Files: []FileOp{{
		Action: ActionUpdate,
		Path:   "main.go",
		Hunks: []Hunk{{
			Context: "func main() {",
			Lines: []Line{
				{Kind: ' ', Text: "\tfmt.Println(\"start\")"},
				{Kind: '-', Text: "\tfmt.Println(\"old\")"},
				{Kind: '+', Text: "\tfmt.Println(\"new\")"},
			},
		}},
	}}}

	summaries, err := Apply(fs, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].String() != "M main.go" {
		t.Errorf("summaries = %v", summaries)
	}
	want := "package main\n\nfunc main() {\n\tfmt.Println(\"start\")\n\tfmt.Println(\"new\")\n}\n"
	if fs.files["main.go"] != want {
		t.Errorf("content = %q, want %q", fs.files["main.go"], want)
	}
}

func TestApplyUpdateFileMultipleHunksAppliedInFileOrder(t *testing.T) {
	original := "line1\nline2\nline3\nline4\nline5\n"
	fs := newMemFS(map[string]string{"f.txt": original})

	p := &Patch{Files: []FileOp{{
		Action: ActionUpdate,
		Path:   "f.txt",
		Hunks: []Hunk{
			{Context: "line1", Lines: []Line{{Kind: ' ', Text: "line1"}, {Kind: '-', Text: "line2"}, {Kind: '+', Text: "line2-new"}}},
			{Context: "line4", Lines: []Line{{Kind: ' ', Text: "line4"}, {Kind: '-', Text: "line5"}, {Kind: '+', Text: "line5-new"}}},
		},
	}}}

	if _, err := Apply(fs, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "line1\nline2-new\nline3\nline4\nline5-new\n"
	if fs.files["f.txt"] != want {
		t.Errorf("content = %q, want %q", fs.files["f.txt"], want)
	}
}

func TestApplyUpdateFileContextMismatchErrors(t *testing.T) {
	fs := newMemFS(map[string]string{"f.txt": "line1\nline2\n"})
	p := &Patch{Files: []FileOp{{
		Action: ActionUpdate,
		Path:   "f.txt",
		Hunks: []Hunk{{
			Context: "line1",
			Lines:   []Line{{Kind: '-', Text: "does not exist"}, {Kind: '+', Text: "replacement"}},
		}},
	}}}

	if _, err := Apply(fs, p); err == nil {
		t.Error("expected context mismatch error")
	}
}

func TestApplyAddFileCreatesParentDirs(t *testing.T) {
	fs := newMemFS(nil)
	p := &Patch{Files: []FileOp{{Action: ActionAdd, Path: "nested/dir/new.txt", Content: "hi"}}}
	if _, err := Apply(fs, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.files["nested/dir/new.txt"] != "hi\n" {
		t.Errorf("content missing at nested path: %v", fs.files)
	}
}
