package utils

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func opener(content string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func TestWriteZip(t *testing.T) {
	var buf bytes.Buffer
	skipped, err := WriteZip(&buf, []ZipEntry{
		{Path: "a.bin", WrappedKey: "ka", Open: opener("AAA")},
		{Path: "sub/b.bin", WrappedKey: "kb", Open: opener("BB")},
		{Path: "gone.bin", WrappedKey: "kg", Open: func() (io.ReadCloser, error) { return nil, errors.New("missing") }},
		{Path: "../escape.bin", WrappedKey: "ke", Open: opener("E")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"gone.bin", "../escape.bin"}, skipped)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(data)
	}
	require.Equal(t, "AAA", contents["a.bin"])
	require.Equal(t, "BB", contents["sub/b.bin"])

	var manifest []ManifestEntry
	require.NoError(t, json.Unmarshal([]byte(contents[ManifestName]), &manifest))
	require.Equal(t, []ManifestEntry{
		{Path: "a.bin", WrappedKey: "ka"},
		{Path: "sub/b.bin", WrappedKey: "kb"},
	}, manifest)
}

func TestArchivePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.txt", want: "a/b.txt"},
		{in: "/abs/c.txt", want: "abs/c.txt"},
		{in: "a//b.txt", want: "a/b.txt"},
		{in: `win\path.txt`, want: "win/path.txt"},
		{in: "../up.txt", wantErr: true},
		{in: "a/../../up.txt", wantErr: true},
		{in: "", wantErr: true},
		{in: ManifestName, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ArchivePath(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
