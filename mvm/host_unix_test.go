//go:build unix

package mvm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOSHost(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var stdout bytes.Buffer
	h := NewOSHost(dir, &stdout)
	defer h.Release()
	testHost(t, h, func(name string) []byte {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return data
	})
	require.Equal(t, int64(2), h.Write(Stdout, []byte("ok")))
	require.Equal(t, "ok", stdout.String())
}
