// Package blame fabricates a git history that pins a bug on an intern.
package blame

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DefaultIntern is used when no scapegoat is named.
const DefaultIntern = "Jordan"

// ErrBugRequired is returned when the bug description is empty.
var ErrBugRequired = errors.New("please describe the bug first")

var (
	excuses = []string{
		"quick fix, will refactor later",
		"works on my machine",
		"not sure why this works but dont touch",
		"TODO: figure out what this does",
		"hotfix for prod issue",
		"oops",
		"final fix v2",
		"please work",
		"temporary solution (permanent)",
		"trust me bro",
		"i have no idea what im doing",
		"this should fix it maybe",
		"yolo deploy",
		"friday afternoon commit",
		"dont blame me",
	}
	seniors  = []string{"Alex Chen", "Sarah Miller", "Mike Johnson"}
	messages = []string{
		"Refactor: improve code quality",
		"Add tests for edge cases",
		"Update dependencies",
		"Code review fixes",
	}
	files = []string{
		"api/auth.ts",
		"utils/helpers.js",
		"components/Button.tsx",
		"lib/database.ts",
		"services/payment.ts",
		"hooks/useAuth.ts",
		"middleware/cors.ts",
		"config/settings.ts",
	}
)

// Commit is one fabricated commit.
type Commit struct {
	Hash         string   `json:"hash"`
	Author       string   `json:"author"`
	Date         string   `json:"date"`
	Message      string   `json:"message"`
	FilesChanged []string `json:"filesChanged"`
	Intern       bool     `json:"intern"`
}

// Request names the bug and the scapegoat.
type Request struct {
	Bug    string `json:"input"`
	Intern string `json:"intern"`
}

// History is the generated log.
type History struct {
	Bug     string   `json:"bug"`
	Intern  string   `json:"intern"`
	Commits []Commit `json:"commits"`
	Log     string   `json:"log"`
}

// Generate builds 3 to 6 commits; the middle and last ones belong to the intern.
func Generate(rng *rand.Rand, now time.Time, req Request) (History, error) {
	bug := strings.TrimSpace(req.Bug)
	if bug == "" {
		return History{}, ErrBugRequired
	}
	intern := strings.TrimSpace(req.Intern)
	if intern == "" {
		intern = DefaultIntern
	}
	n := rng.IntN(4) + 3
	commits := make([]Commit, 0, n)
	for i := 0; i < n; i++ {
		isIntern := i == n/2 || i == n-1
		c := Commit{
			Hash:         fmt.Sprintf("%07x", rng.Uint32()&0xfffffff),
			Date:         date(rng, now, n-i+rng.IntN(5)),
			FilesChanged: []string{files[rng.IntN(len(files))]},
			Intern:       isIntern,
		}
		if isIntern {
			c.Author = intern
			c.Message = excuses[rng.IntN(len(excuses))]
		} else {
			c.Author = seniors[rng.IntN(len(seniors))]
			c.Message = messages[rng.IntN(len(messages))]
		}
		commits = append(commits, c)
	}
	return History{Bug: bug, Intern: intern, Commits: commits, Log: GitLog(commits)}, nil
}

func date(rng *rand.Rand, now time.Time, daysAgo int) string {
	d := now.UTC().AddDate(0, 0, -daysAgo)
	return fmt.Sprintf("%s %02d:%02d", d.Format(time.DateOnly), rng.IntN(24), rng.IntN(60))
}

// GitLog renders commits the way git log prints them.
func GitLog(commits []Commit) string {
	parts := make([]string, 0, len(commits))
	for _, c := range commits {
		parts = append(parts, fmt.Sprintf("commit %s\nAuthor: %s\nDate: %s\n\n    %s\n", c.Hash, c.Author, c.Date, c.Message))
	}
	return strings.Join(parts, "\n")
}

// FormatCommit renders a single commit including its files.
func FormatCommit(c Commit) string {
	return fmt.Sprintf("commit %s\nAuthor: %s\nDate: %s\n\n    %s\n\nFiles: %s", c.Hash, c.Author, c.Date, c.Message, strings.Join(c.FilesChanged, ", "))
}
