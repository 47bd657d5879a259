package load

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name       string
		wantBucket string
		wantKey    string
		wantOk     bool
	}{
		{name: "s3://bucket/key.tar.gz", wantBucket: "bucket", wantKey: "key.tar.gz", wantOk: true},
		{name: "s3://bucket/path/to/key.zip", wantBucket: "bucket", wantKey: "path/to/key.zip", wantOk: true},
		{name: "s3://bucket/"},
		{name: "s3://bucket"},
		{name: "s3:///key"},
		{name: "bucket/key"},
		{name: "./s3://bucket/key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, ok := ParseS3URI(tt.name)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestLoad_File(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 10_000)
	name := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(name, data, 0644))

	got, err := Load(context.Background(), name)
	require.NoErrorf(t, err, "Load() error = %v", err)
	assert.Equal(t, data, got)

	got, err = Load(context.Background(), name, func(opts *Options) {
		opts.Progress = io.Discard
	})
	require.NoErrorf(t, err, "Load() error = %v", err)
	assert.Equal(t, data, got)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrIsDirectory)

	_, err = Load(context.Background(), filepath.Join(dir, "does-not-exist"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	name := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(name, make([]byte, 1<<20), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, name)
	assert.ErrorIs(t, err, context.Canceled)
}
