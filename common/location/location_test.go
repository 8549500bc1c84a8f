package location

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileLocations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		path string
	}{
		{"plain path", "/home/user/secure_preferences.equinox", "/home/user/secure_preferences.equinox"},
		{"file URL", "file:/home/user/x", "/home/user/x"},
		{"spaces are not encoded", "file:/home/a user/x", "/home/a user/x"},
		{"escapes are not decoded", "file:/tmp/a%20b", "/tmp/a%20b"},
		{"empty authority", "file:///tmp/x", "/tmp/x"},
		{"localhost authority", "file://localhost/tmp/x", "/tmp/x"},
		{"upper case scheme", "FILE:/tmp/x", "/tmp/x"},
		{"drive letter", `C:\Users\a user\x`, `C:\Users\a user\x`},
		{"relative path", "prefs/x", "prefs/x"},
		{"colon inside path", "/tmp/a:b", "/tmp/a:b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, loc.IsFile())
			assert.Equal(t, tt.path, loc.Path())
			assert.Equal(t, "file:"+tt.path, loc.String())

			again, err := Parse(loc.String())
			require.NoError(t, err)
			assert.Equal(t, loc, again)
		})
	}
}

func TestParseOtherLocations(t *testing.T) {
	loc, err := Parse("http://example.com/prefs/store")
	require.NoError(t, err)
	assert.False(t, loc.IsFile())
	assert.Equal(t, "http", loc.Scheme())
	assert.Equal(t, "http://example.com/prefs/store", loc.String())

	loc, err = Parse("HTTPS://example.com/a%20b")
	require.NoError(t, err)
	assert.Equal(t, "https", loc.Scheme())
	assert.Equal(t, "HTTPS://example.com/a%20b", loc.Path())
}

func TestParseFails(t *testing.T) {
	for _, in := range []string{"", "file:", "file://host", "http:///nohost", "http://%zz/"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestFromPath(t *testing.T) {
	loc := FromPath("/a b/c")
	assert.True(t, loc.IsFile())
	assert.False(t, loc.IsZero())
	assert.Equal(t, "file:/a b/c", loc.String())
	assert.True(t, Location{}.IsZero())
}

func TestDefaultLocation(t *testing.T) {
	home := filepath.Join("home", "a user")
	loc, err := Resolver{Home: home}.DefaultLocation()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultFileName), loc.Path())

	config := FromPath(filepath.Join("opt", "app", "configuration"))
	loc, err = Resolver{Home: home, Config: config}.DefaultLocation()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultFileName), loc.Path(), "home takes precedence")

	loc, err = Resolver{Config: config}.DefaultLocation()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(config.Path(), DefaultFileName), loc.Path())

	remote, err := Parse("http://example.com/configuration")
	require.NoError(t, err)
	_, err = Resolver{Config: remote}.DefaultLocation()
	assert.ErrorIs(t, err, ErrNoDefaultLocation)

	_, err = Resolver{}.DefaultLocation()
	assert.ErrorIs(t, err, ErrNoDefaultLocation)
}
