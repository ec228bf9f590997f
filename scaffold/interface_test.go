package scaffold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

func TestParseInterfaceAtRelease(t *testing.T) {
	ref, err := ParseInterfaceAtRelease("keyvalue@v0.2.0")
	require.NoError(t, err)
	assert.Equal(t, "keyvalue", ref.Name)
	assert.Equal(t, "v0.2.0", ref.Release)
	assert.Equal(t, uint64(2), ref.Version.Minor())
	assert.Equal(t, "keyvalue@v0.2.0", ref.String())
	assert.Equal(t, "keyvalue_v0.2.0", ref.Dir())

	ref, err = ParseInterfaceAtRelease("http-server@1.0.0-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "rc.1", ref.Version.Prerelease())
}

func TestParseInterfaceAtRelease_Invalid(t *testing.T) {
	for _, in := range []string{"", "keyvalue", "@v0.2.0", "keyvalue@", "keyvalue@latest", "../x@v1.0.0", "kv@v1.0"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseInterfaceAtRelease(in)
			var herr *hosterrors.Error
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, hosterrors.KindInvalidInput, herr.Kind)
		})
	}
}
