package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArchive_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.db"), []byte("trades-bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "context.db"), []byte("context-bytes"), 0644))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"trades.db", "context.db"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, map[string]string{
		"trades.db":  "trades-bytes",
		"context.db": "context-bytes",
	}, contents)
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	sum, err := checksumFile(path)
	require.NoError(t, err)
	// sha256("abc")
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-metadata.json")
	meta := BackupMetadata{
		Timestamp: time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC),
		Version:   metadataVersion,
		Files:     []FileMetadata{{Filename: "trades.db", SizeBytes: 12, Checksum: "sha256:x"}},
	}
	require.NoError(t, writeMetadata(path, meta))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trades.db"`)
	assert.Contains(t, string(data), `"sha256:x"`)
}
