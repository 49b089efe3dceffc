package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFileName holds extra gitignore-style patterns that apply to
// indexing only
const IgnoreFileName = ".codectxignore"

// ignoreMatcher combines the gitignore rules of the enclosing repository
// with the workspace's own ignore file
type ignoreMatcher struct {
	scopes []ignoreScope
}

// ignoreScope is a matcher whose patterns are relative to root
type ignoreScope struct {
	root    string
	matcher gitignore.Matcher
}

func newIgnoreMatcher(root string) *ignoreMatcher {
	m := &ignoreMatcher{}

	// Inside a repository every nested .gitignore applies. Outside one only
	// the root .gitignore is read.
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if wt, err := repo.Worktree(); err == nil {
			if patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil); err == nil {
				m.add(wt.Filesystem.Root(), patterns)
			}
		}
	} else if patterns, err := loadPatterns(filepath.Join(root, ".gitignore")); err == nil {
		m.add(root, patterns)
	}

	if patterns, err := loadPatterns(filepath.Join(root, IgnoreFileName)); err == nil {
		m.add(root, patterns)
	}
	return m
}

func (m *ignoreMatcher) add(root string, patterns []gitignore.Pattern) {
	if len(patterns) == 0 {
		return
	}
	m.scopes = append(m.scopes, ignoreScope{root: root, matcher: gitignore.NewMatcher(patterns)})
}

// Match reports whether the absolute path is ignored
func (m *ignoreMatcher) Match(path string, isDir bool) bool {
	for _, s := range m.scopes {
		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if s.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir) {
			return true
		}
	}
	return false
}

// loadPatterns reads gitignore-style patterns from a file
func loadPatterns(path string) ([]gitignore.Pattern, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
