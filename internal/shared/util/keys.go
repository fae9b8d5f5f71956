package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var ErrInvalidFileName = errors.New("invalid file name")

const maxFileNameLen = 120

// OwnerKey returns a storage-safe namespace for a user ID.
func OwnerKey(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

// SanitizeFileName drops any directory part and replaces characters outside
// [A-Za-z0-9._-] so the result is safe as a single object key segment.
func SanitizeFileName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "", ErrInvalidFileName
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "", ErrInvalidFileName
	}
	if len(out) > maxFileNameLen {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = out[:maxFileNameLen-len(ext)] + ext
	}
	return out, nil
}

// ObjectKey builds "<owner>/<uuid>_<name>" for a new object.
func ObjectKey(userID, fileName string) (string, error) {
	clean, err := SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return OwnerKey(userID) + "/" + uuid.NewString() + "_" + clean, nil
}
