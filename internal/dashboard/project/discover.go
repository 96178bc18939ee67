package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/moby/patternmatcher"
)

// discover lists the directories directly under root whose names match no
// ignore pattern, sorted by name.
func discover(root string, ignore *patternmatcher.PatternMatcher) ([]Project, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read projects root: %w", err)
	}

	projects := make([]Project, 0, len(entries))
	for _, entry := range entries {
		if !isDirEntry(root, entry) {
			continue
		}
		if ignore != nil {
			skip, err := ignore.MatchesOrParentMatches(entry.Name())
			if err != nil {
				return nil, fmt.Errorf("match ignore patterns: %w", err)
			}
			if skip {
				continue
			}
		}
		projects = append(projects, Project{
			Name: entry.Name(),
			Path: filepath.Join(root, entry.Name()),
		})
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// isDirEntry follows symlinks so linked project checkouts are listed.
func isDirEntry(root string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, entry.Name()))
	return err == nil && info.IsDir()
}

func compileIgnore(patterns []string) (*patternmatcher.PatternMatcher, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}
	return pm, nil
}
