// Package mirror computes where a translated file lands in the output tree.
// The output tree replicates the input tree relative to a base directory,
// and every output file is named <stem>.<target-language>.
package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Mapping links one source file to its translated counterpart.
type Mapping struct {
	Source string
	Output string
}

// SplitExt splits path into stem and extension (without the dot).
// Only the base name is considered, and leading dots of the base name never
// start an extension, so ".bashrc" has no extension while "a.tar.gz" has "gz".
func SplitExt(path string) (stem, ext string) {
	base := filepath.Base(path)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || strings.TrimLeft(base[:i], ".") == "" {
		return path, ""
	}
	cut := len(base) - i
	return path[:len(path)-cut], base[i+1:]
}

// Matches reports whether the file name passes the extension filter.
// An empty filter matches everything. Comparison is case-sensitive.
func Matches(name, filter string) bool {
	if filter == "" {
		return true
	}
	_, ext := SplitExt(name)
	return ext == filter
}

// OutputPath returns outRoot/<inFile relative to baseDir, extension
// stripped>.<targetLang>.
func OutputPath(baseDir, inFile, outRoot, targetLang string) (string, error) {
	stem, _ := SplitExt(inFile)
	if !Within(baseDir, stem) {
		return "", fmt.Errorf("%s is outside of %s", inFile, baseDir)
	}
	rel, err := filepath.Rel(baseDir, stem)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s against %s: %w", inFile, baseDir, err)
	}
	return filepath.Join(outRoot, rel+"."+targetLang), nil
}

// Map builds the Mapping for inFile.
func Map(baseDir, inFile, outRoot, targetLang string) (Mapping, error) {
	out, err := OutputPath(baseDir, inFile, outRoot, targetLang)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{Source: inFile, Output: out}, nil
}

// Within reports whether path equals root or lies beneath it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
