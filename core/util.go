package core

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Slugify lowers s and replaces every run of characters other than letters and digits with a dash.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(CleanString(s, true), "-"), "-")
}

// Getwd finds the project root, ie: the closest parent directory holding the go.mod file.
// go-test changes the working directory to the package being tested, so os.Getwd alone is not enough.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
