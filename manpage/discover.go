package manpage

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	sectionSuffixRe = regexp.MustCompile(`\.(\d[a-z]?)$`)
	sectionDirRe    = regexp.MustCompile(`^man(\d[a-z]?)$`)
)

// DetectSection infers the man section number from the file suffix, falling
// back to the parent manN directory.
func DetectSection(path string) string {
	if m := sectionSuffixRe.FindStringSubmatch(filepath.Base(path)); m != nil {
		return m[1]
	}
	if m := sectionDirRe.FindStringSubmatch(filepath.Base(filepath.Dir(path))); m != nil {
		return m[1]
	}
	return ""
}

// Discover enumerates man source files under root in deterministic order.
// A limit > 0 caps the result before any rendering happens, which keeps
// --limit cheap for fast iteration.
func Discover(root string, limit int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !sectionSuffixRe.MatchString(d.Name()) {
			return nil
		}
		if !sectionDirRe.MatchString(filepath.Base(filepath.Dir(path))) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		si, sj := filepath.Ext(files[i]), filepath.Ext(files[j])
		if si != sj {
			return si < sj
		}
		return strings.ToLower(files[i]) < strings.ToLower(files[j])
	})

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}
