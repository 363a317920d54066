package matrix

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeStub creates an executable that prints stdout, records its
// arguments next to itself, and exits with code.
func writeStub(t *testing.T, dir, name, stdout string, code int) string {
	t.Helper()
	data := filepath.Join(dir, name+".out")
	require.NoError(t, os.WriteFile(data, []byte(stdout), 0o644))

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > '" + filepath.Join(dir, name+".args") + "'\n" +
		"echo noise >&2\n" +
		"cat '" + data + "'\n" +
		"exit " + strconv.Itoa(code) + "\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func readArgs(t *testing.T, stub string) string {
	t.Helper()
	data, err := os.ReadFile(stub + ".args")
	require.NoError(t, err)
	return string(data)
}
