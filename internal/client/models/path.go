package models

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const maxStoredNameLen = 100

// ErrInvalidSegment reports an owner or group id that cannot be used as one
// element of a remote path.
var ErrInvalidSegment = errors.New("invalid path segment")

// CheckSegment rejects ids that are empty, dot names or contain a separator.
func CheckSegment(v string) error {
	if v == "" || v == "." || v == ".." || strings.ContainsAny(v, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, v)
	}
	return nil
}

// SanitizeFileName keeps a readable, storage-safe form of a file name.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		ok := r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		if r == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}

	s := strings.Trim(b.String(), "_.")
	if len(s) > maxStoredNameLen {
		s = s[len(s)-maxStoredNameLen:]
	}
	if s == "" {
		return "file"
	}
	return s
}

// StoredName builds the collision-avoiding remote name.
func StoredName(original string, at time.Time, token string) string {
	return fmt.Sprintf("%d_%s_%s", at.UnixMilli(), token, SanitizeFileName(original))
}

// RemotePath joins folder, owner, optional group and stored name. Owner and
// group must pass CheckSegment.
func RemotePath(folder, ownerID, groupID, storedName string) string {
	parts := []string{strings.Trim(folder, "/"), ownerID}
	if groupID != "" {
		parts = append(parts, groupID)
	}
	parts = append(parts, storedName)
	return path.Join(parts...)
}
