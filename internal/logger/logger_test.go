package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected logrus.Level
		ok       bool
	}{
		{"debug", logrus.DebugLevel, true},
		{"VERBOSE", logrus.TraceLevel, true},
		{"warning", logrus.WarnLevel, true},
		{"0", logrus.FatalLevel, true},
		{"5", logrus.TraceLevel, true},
		{"6", 0, false},
		{"loud", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if ok != tt.ok || (ok && got != tt.expected) {
			t.Errorf("ParseLevel(%q): expected %v/%v, got %v/%v", tt.in, tt.expected, tt.ok, got, ok)
		}
	}
	if LevelName(logrus.TraceLevel) != "VERBOSE" {
		t.Errorf("expected VERBOSE, got %s", LevelName(logrus.TraceLevel))
	}
}

func TestPetitionLoggerEchoesAndForwards(t *testing.T) {
	var server, client bytes.Buffer
	l := New(&server)
	l.SetCmdLevel(logrus.WarnLevel)

	p := l.ForPetition(&client)
	p.Error("Not logged in.")
	p.Info("hidden")
	p.WithField("tag", 3).Warn("careful")

	assert.Equal(t, "[err: Not logged in.]\n[warn: careful]\n", client.String())
	assert.Contains(t, server.String(), "Not logged in.")
	assert.Contains(t, server.String(), "tag=3")
	assert.NotContains(t, server.String(), "hidden")
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestRotatingWriterRotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	w, err := NewRotatingWriter(path, WithMaxSize(10), WithMaxArchives(2))
	require.NoError(t, err)

	for _, line := range []string{"first line\n", "second line\n", "third line\n", "fourth line\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
		require.NoError(t, w.Flush())
	}
	require.NoError(t, w.Close())

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fourth line\n", string(current))
	assert.Equal(t, "third line\n", readGzip(t, path+".1.gz"))
	assert.Equal(t, "second line\n", readGzip(t, path+".2.gz"))
	_, err = os.Stat(path + ".3.gz")
	assert.True(t, os.IsNotExist(err), "expected archives past the max to be dropped")
}

func TestRotatingWriterFlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewRotatingWriter(path)
	require.NoError(t, err)

	w.Write([]byte(strings.Repeat("a", 10)))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), string(data))
}

func TestNewWithFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewWithFile(dir, false)
	require.NoError(t, err)
	l.Cmd.Info("server started")
	require.NoError(t, l.Close())

	assert.Equal(t, filepath.Join(dir, LogFileName), l.FilePath())
	data, err := os.ReadFile(l.FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "server started")
}
