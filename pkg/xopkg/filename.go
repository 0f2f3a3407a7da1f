package xopkg

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// DeriveFilename names a stored bundle from its declared name and the
// acceptance time in epoch seconds: "{name}-{seconds}.xo", sanitized to
// a single safe path component. Two uploads of the same name in the
// same second derive the same filename; the record store's key
// constraint catches that, the caller disambiguates.
func DeriveFilename(name string, acceptedAt int64) string {
	return SanitizeFilename(fmt.Sprintf("%s-%d%s", name, acceptedAt, Suffix))
}

// SanitizeFilename reduces name to a conservative charset: path
// separators become word breaks, whitespace runs collapse to one
// underscore, anything outside [A-Za-z0-9_.-] is dropped, and leading
// or trailing dots and underscores are trimmed.
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
