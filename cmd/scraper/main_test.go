package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/internal/jobs"
)

func TestLoadURLs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(file, []byte("# wishlist\nhttps://shop.example/p/3\n\n  https://shop.example/p/4  \n"), 0o644))

	tests := []struct {
		name   string
		single string
		list   string
		file   string
		want   []string
	}{
		{
			name: "nothing given",
		},
		{
			name:   "single url",
			single: "https://shop.example/p/1",
			want:   []string{"https://shop.example/p/1"},
		},
		{
			name: "comma list trims blanks",
			list: "https://shop.example/p/1, ,https://shop.example/p/2",
			want: []string{"https://shop.example/p/1", "https://shop.example/p/2"},
		},
		{
			name:   "all sources in order",
			single: "https://shop.example/p/0",
			list:   "https://shop.example/p/1",
			file:   file,
			want: []string{
				"https://shop.example/p/0",
				"https://shop.example/p/1",
				"https://shop.example/p/3",
				"https://shop.example/p/4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadURLs(tt.single, tt.list, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadURLs_MissingFile(t *testing.T) {
	_, err := loadURLs("", "", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "failed to read input file")
}

func TestPromptURL(t *testing.T) {
	var out bytes.Buffer

	got, err := promptURL(strings.NewReader("  https://shop.example/p/1\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/p/1", got)
	assert.Equal(t, "Product URL: ", out.String())

	got, err = promptURL(strings.NewReader("https://shop.example/p/2"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/p/2", got)

	_, err = promptURL(strings.NewReader("\n"), io.Discard)
	assert.Error(t, err)
}

func TestWriteResults(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	failedErr := errors.New("boom")
	items := []jobs.Item{
		{URL: "https://shop.example/p/1"},
		{URL: "https://shop.example/p/2", Err: failedErr, Error: failedErr.Error()},
	}

	failed := writeResults(&out, items, logger)

	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), `"url": "https://shop.example/p/1"`)
	assert.Contains(t, out.String(), `"error": "boom"`)
}

func TestFlagSet(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "absent keeps config", args: nil, want: false},
		{name: "explicit false", args: []string{"-headless=false"}, want: true},
		{name: "explicit true", args: []string{"-headless"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
			fs.Bool("headless", true, "")
			require.NoError(t, fs.Parse(tt.args))

			assert.Equal(t, tt.want, flagSet(fs, "headless"))
		})
	}
}
