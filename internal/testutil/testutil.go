package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
)

func Context(t testing.TB) context.Context {
	ctx := context.Background()
	ctx, cf := context.WithCancel(ctx)
	t.Cleanup(cf)
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	ctx = logctx.NewContext(ctx, l)
	return ctx
}

// WriteFile writes data to name inside dir and returns the full path.
func WriteFile(t testing.TB, dir, name string, data []byte, perm os.FileMode) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, perm))
	return p
}

// ReadFile returns the contents of name inside dir.
func ReadFile(t testing.TB, dir, name string) []byte {
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return data
}

// CanRunNative is true when images produced by the generator can be executed on this host.
func CanRunNative() bool {
	return runtime.GOOS == "linux" && runtime.GOARCH == "amd64"
}

// RequireNative skips the test unless CanRunNative.
func RequireNative(t testing.TB) {
	if !CanRunNative() {
		t.Skipf("images do not run on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}
