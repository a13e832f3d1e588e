package naming

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"My Photo!.png":     "My_Photo_",
		"vacation pic.jpg":  "vacation_pic",
		"":                  "image",
		".png":              "image",
		"simple.jpeg":       "simple",
		"ümlauts&stuff.gif": "_mlauts_stuff",
		"keep.dots.ok.png":  "keep.dots.ok",
		"a..b.png":          "a__b",
		"-_ok-.webp":        "-_ok-",
		"name..png":         "name",
		"photo..jpg":        "photo",
		"a....png":          "a__",
		"..png":             "image",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeBase(in), "input %q", in)
	}
}

func TestDeriveAnonymous(t *testing.T) {
	now := time.UnixMilli(1717171717171)

	keys := Derive("My Photo!.png", now, "")
	require.Equal(t, "My_Photo_", keys.Base)
	require.Equal(t, "full/1717171717171-My_Photo_.webp", keys.FullKey)
	require.Equal(t, "thumbnails/1717171717171-My_Photo_.webp", keys.ThumbKey)
}

func TestDeriveOwnerScoped(t *testing.T) {
	now := time.UnixMilli(1717171717171)

	keys := Derive("avatar.jpg", now, "user-42")
	full := regexp.MustCompile(`^users/user-42/1717171717171-avatar-[0-9a-f]{8}\.full\.webp$`)
	thumb := regexp.MustCompile(`^users/user-42/1717171717171-avatar-[0-9a-f]{8}\.thumb\.webp$`)
	require.Regexp(t, full, keys.FullKey)
	require.Regexp(t, thumb, keys.ThumbKey)

	// Same base name, same millisecond: the suffix keeps the keys apart.
	again := Derive("avatar.jpg", now, "user-42")
	require.NotEqual(t, keys.FullKey, again.FullKey)
}

func TestDeriveNeverTraverses(t *testing.T) {
	hostile := []struct {
		name  string
		owner string
	}{
		{"../../etc/passwd.png", ""},
		{"..\\win.jpg", ""},
		{"pic.png", "../admin"},
		{"pic.png", "a/../b"},
		// Stems ending in a dot must not fuse with the ".webp" suffix.
		{"name..png", ""},
		{"photo..jpg", ""},
		{"a....png", ""},
		{"name..png", "user-1"},
	}
	for _, tc := range hostile {
		keys := Derive(tc.name, time.Now(), tc.owner)
		require.NotContains(t, keys.FullKey, "..", "name=%q owner=%q", tc.name, tc.owner)
		require.NotContains(t, keys.ThumbKey, "..", "name=%q owner=%q", tc.name, tc.owner)
	}
}
