package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteEditRoundTrip(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	write := &WriteFile{Root: root}
	res, err := write.Execute(ctx, map[string]any{
		"path":    "notes/todo.txt",
		"content": "first line\nsecond line\n",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	read := &ReadFile{Root: root}
	res, err = read.Execute(ctx, map[string]any{"path": "notes/todo.txt"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "first line")

	edit := &EditFile{Root: root}
	res, err = edit.Execute(ctx, map[string]any{
		"path":       "notes/todo.txt",
		"old_string": "second line",
		"new_string": "changed line",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	data, err := os.ReadFile(filepath.Join(root, "notes/todo.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "changed line")
}

func TestReadFileLineWindow(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("a\nb\nc\nd\ne"), 0o644))

	read := &ReadFile{Root: root}
	res, err := read.Execute(context.Background(), map[string]any{
		"path": "f.txt", "offset": float64(1), "limit": float64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "b\nc", res.Content)
}

func TestResolvePathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	read := &ReadFile{Root: root}

	res, err := read.Execute(context.Background(), map[string]any{"path": "../outside.txt"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "escapes workspace")
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("dup dup"), 0o644))

	edit := &EditFile{Root: root}
	res, err := edit.Execute(context.Background(), map[string]any{
		"path": "f.txt", "old_string": "dup", "new_string": "x",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "must be unique")

	res, err = edit.Execute(context.Background(), map[string]any{
		"path": "f.txt", "old_string": "absent", "new_string": "x",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestBashRunsCommand(t *testing.T) {
	b := &Bash{Root: t.TempDir()}

	res, err := b.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hello", res.Content)
}

func TestBashReportsFailure(t *testing.T) {
	b := &Bash{Root: t.TempDir()}

	res, err := b.Execute(context.Background(), map[string]any{"command": "exit 3"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "exit status 3")
}

func TestBashTimeout(t *testing.T) {
	b := &Bash{Root: t.TempDir()}

	res, err := b.Execute(context.Background(), map[string]any{
		"command": "sleep 10", "timeout": 0.1,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestNoteAndRecall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.jsonl")
	ctx := context.Background()

	note := &Note{Path: path}
	for _, in := range []map[string]any{
		{"text": "buy milk", "category": "errands"},
		{"text": "refactor parser"},
	} {
		res, err := note.Execute(ctx, in)
		require.NoError(t, err)
		require.True(t, res.Success, res.Error)
	}

	recall := &Recall{Path: path}
	res, err := recall.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "buy milk")
	assert.Contains(t, res.Content, "refactor parser")

	res, err = recall.Execute(ctx, map[string]any{"category": "errands"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "buy milk")
	assert.NotContains(t, res.Content, "refactor parser")
}

func TestRecallWithoutNotebook(t *testing.T) {
	recall := &Recall{Path: filepath.Join(t.TempDir(), "missing.jsonl")}

	res, err := recall.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "no notes saved yet", res.Content)
}

func TestSkillLoadAndList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.md"), []byte("# Deploy\nsteps"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.md"), []byte("# Review"), 0o644))

	skill := &Skill{Dir: dir}
	ctx := context.Background()

	res, err := skill.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "deploy")
	assert.Contains(t, res.Content, "review")

	res, err = skill.Execute(ctx, map[string]any{"name": "deploy"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "# Deploy")

	res, err = skill.Execute(ctx, map[string]any{"name": "missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = skill.Execute(ctx, map[string]any{"name": "../etc/passwd"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestFetchConvertsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Release Notes</title></head>
			<body><script>alert(1)</script><h1>Changes</h1><p>Fixed <b>bugs</b>.</p></body></html>`))
	}))
	defer srv.Close()

	f := &Fetch{Client: srv.Client()}
	res, err := f.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Content, "# Release Notes")
	assert.Contains(t, res.Content, "Changes")
	assert.Contains(t, res.Content, "**bugs**")
	assert.NotContains(t, res.Content, "alert(1)")
}

func TestFetchRejectsBadScheme(t *testing.T) {
	f := &Fetch{}
	res, err := f.Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestFetchReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := &Fetch{Client: srv.Client()}
	res, err := f.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "410")
}

func TestBuiltinSet(t *testing.T) {
	set := Builtin(t.TempDir(), t.TempDir(), t.TempDir())
	names := make(map[string]bool)
	for _, tool := range set {
		names[tool.Name()] = true
		assert.NotEmpty(t, tool.Description())
		assert.Equal(t, "object", tool.Parameters()["type"])
	}
	for _, want := range []string{"read_file", "write_file", "edit_file", "bash", "note", "recall", "skill", "fetch"} {
		assert.True(t, names[want], want)
	}
}
