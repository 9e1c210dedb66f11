package daemon

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteStatusRoundTrips(t *testing.T) {
	dir := t.TempDir()
	p := Paths{Root: dir, Name: "matchd"}

	require.NoError(t, p.WriteStatus(Running))
	content, err := os.ReadFile(p.StatusPath())
	require.NoError(t, err)
	require.Equal(t, string(Running), string(content))

	require.NoError(t, p.WriteStatus(GracefullyStopped))
	content, err = os.ReadFile(p.StatusPath())
	require.NoError(t, err)
	require.Equal(t, string(GracefullyStopped), string(content))
}

func TestPathsResolveUnderRoot(t *testing.T) {
	p := Paths{Root: "/var/run/matchd", Name: "book1"}
	require.Equal(t, "/var/run/matchd/book1.sock", p.SockPath())
	require.Equal(t, "/var/run/matchd/book1.db", p.DBPath())
	require.Equal(t, "/var/run/matchd/book1.status", p.StatusPath())
}

func TestOpenLogFilesCreatesBoth(t *testing.T) {
	dir := t.TempDir()
	p := Paths{Root: dir, Name: "matchd"}

	logFile, errFile, err := p.OpenLogFiles()
	require.NoError(t, err)
	defer logFile.Close()
	defer errFile.Close()

	_, err = os.Stat(p.LogPath())
	require.NoError(t, err)
	_, err = os.Stat(p.ErrPath())
	require.NoError(t, err)
}
