package naming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	fullPrefix  = "full/"
	thumbPrefix = "thumbnails/"
	usersPrefix = "users/"

	// fallbackBase is used when sanitization leaves nothing of the filename.
	fallbackBase = "image"
)

// Keys holds the derived storage keys for one upload.
type Keys struct {
	Base     string
	FullKey  string
	ThumbKey string
}

// Derive computes the sanitized base name and both derivative keys from the
// uploaded filename. Anonymous uploads land under the shared tier prefixes;
// owner-scoped uploads land under users/<owner>/ with a random suffix so two
// uploads in the same millisecond cannot collide.
func Derive(originalName string, now time.Time, ownerID string) Keys {
	base := SanitizeBase(originalName)
	ts := strconv.FormatInt(now.UnixMilli(), 10)

	if ownerID == "" {
		unique := ts + "-" + base
		return Keys{
			Base:     base,
			FullKey:  fullPrefix + unique + ".webp",
			ThumbKey: thumbPrefix + unique + ".webp",
		}
	}

	owner := sanitize(ownerID)
	if owner == "" {
		owner = "anonymous"
	}
	unique := fmt.Sprintf("%s%s/%s-%s-%s", usersPrefix, owner, ts, base, randomSuffix())
	return Keys{
		Base:     base,
		FullKey:  unique + ".full.webp",
		ThumbKey: unique + ".thumb.webp",
	}
}

// SanitizeBase strips the extension and reduces the filename to the
// [A-Za-z0-9._-] alphabet, substituting "image" when nothing is left.
func SanitizeBase(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = sanitize(base)
	// A trailing dot would fuse with the derivative suffix's dot into "..".
	base = strings.TrimRight(base, ".")
	if base == "" {
		return fallbackBase
	}
	return base
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	// Dots are allowed individually but keys must never carry a traversal
	// sequence.
	return strings.ReplaceAll(b.String(), "..", "__")
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano()&0xffffffff, 16)
	}
	return hex.EncodeToString(b)
}
