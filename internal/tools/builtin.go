package tools

import (
	"path/filepath"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Builtin assembles the full local tool set rooted at the given workspace.
// Notes live under dataDir, skills under skillsDir.
func Builtin(root, dataDir, skillsDir string) []schema.Tool {
	return []schema.Tool{
		&ReadFile{Root: root},
		&WriteFile{Root: root},
		&EditFile{Root: root},
		&Bash{Root: root},
		&Note{Path: filepath.Join(dataDir, "notes.jsonl")},
		&Recall{Path: filepath.Join(dataDir, "notes.jsonl")},
		&Skill{Dir: skillsDir},
		&Fetch{},
	}
}
