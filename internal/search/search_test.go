package search

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		target  string
		matches uint64
		total   uint64
	}{
		{"single match", "red", "red", 1, 1},
		{"mixed", "red blue red", "red", 2, 3},
		{"case sensitive", "Red RED red", "red", 1, 3},
		{"empty", "", "red", 0, 0},
		{"whitespace only", " \n\t\r\n ", "red", 0, 0},
		{"newlines and tabs", "red\nred\tred\r\nblue", "red", 3, 4},
		{"punctuation is part of token", "red, red. red", "red", 1, 3},
		{"no match", "alpha beta gamma", "red", 0, 3},
		{"unicode spaces", "red\u00a0red\u2003blue", "red", 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Count(context.Background(), strings.NewReader(tt.input), tt.target, 1024)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, c.Matches)
			assert.Equal(t, tt.total, c.Total)
		})
	}
}

func TestCountTokenTooLong(t *testing.T) {
	input := "red " + strings.Repeat("x", 100) + " red"
	_, err := Count(context.Background(), strings.NewReader(input), "red", 16)
	assert.ErrorIs(t, err, ErrTokenTooLong)
}

func TestCountHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := strings.Repeat("red ", ctxCheckEvery*2)
	c, err := Count(ctx, strings.NewReader(input), "red", 1024)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(ctxCheckEvery), c.Total)
}

func TestSearch(t *testing.T) {
	path := writeFile(t, "b.txt", []byte("red blue red\n"))
	task := types.SearchTask{Index: 0, FilePath: path, TargetWord: "red"}

	result, err := Search(context.Background(), task, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, types.SearchResult{
		FilePath:   path,
		TargetWord: "red",
		MatchCount: 2,
		TotalCount: 3,
	}, result)
	assert.Equal(t, path+"  red  2/3\n", result.Line())
}

func TestSearchMissingFile(t *testing.T) {
	task := types.SearchTask{FilePath: filepath.Join(t.TempDir(), "missing.txt"), TargetWord: "red"}

	_, err := Search(context.Background(), task, DefaultOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, err, types.ErrInput)
	assert.Equal(t, types.KindInput, types.KindOf(err))
}

func TestSearchCancelledIsNotInputError(t *testing.T) {
	path := writeFile(t, "big.txt", []byte(strings.Repeat("red ", ctxCheckEvery*2)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, types.SearchTask{FilePath: path, TargetWord: "red"}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrInput)
	assert.Equal(t, types.KindTransport, types.KindOf(err))
}

func TestSearchCompressed(t *testing.T) {
	text := []byte(strings.Repeat("red green blue\n", 50))

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(text)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write(text)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for name, data := range map[string][]byte{"in.txt.gz": gz.Bytes(), "in.txt.zst": zs.Bytes()} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, data)
			result, err := Search(context.Background(), types.SearchTask{FilePath: path, TargetWord: "red"}, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, uint64(50), result.MatchCount)
			assert.Equal(t, uint64(150), result.TotalCount)
		})
	}
}

func TestSearchCorruptGzip(t *testing.T) {
	path := writeFile(t, "broken.gz", []byte("not gzip at all"))
	_, err := Search(context.Background(), types.SearchTask{FilePath: path, TargetWord: "red"}, DefaultOptions())
	assert.Error(t, err)
}

func TestOpenRejectsBinary(t *testing.T) {
	data := append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, bytes.Repeat([]byte{0}, 64)...)
	path := writeFile(t, "prog", data)

	_, err := Open(path, DefaultOptions())
	assert.ErrorIs(t, err, ErrBinary)

	opts := DefaultOptions()
	opts.RejectBinary = false
	src, err := Open(path, opts)
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}

func TestSearchTextWithMediaSignature(t *testing.T) {
	tests := []struct {
		name    string
		content string
		matches uint64
		total   uint64
	}{
		{"mp3 tag", "ID3 red red blue", 2, 4},
		{"midi header", "MThd red", 1, 2},
		{"gif header", "GIF89a red", 1, 2},
		{"ogg header", "OggS red", 1, 2},
		{"rtf header", "{\\rtf1 red", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "in.txt", []byte(tt.content))
			task := types.SearchTask{FilePath: path, TargetWord: "red"}

			result, err := Search(context.Background(), task, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.matches, result.MatchCount)
			assert.Equal(t, tt.total, result.TotalCount)
		})
	}
}

func TestHasControlBytes(t *testing.T) {
	assert.False(t, hasControlBytes([]byte("GIF89a red\tblue\r\n")))
	assert.False(t, hasControlBytes([]byte("caf\xe9 \x1b[1m")))
	assert.True(t, hasControlBytes([]byte("GIF89a\x01\x00")))
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.txt", nil)

	src, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer src.Close()

	c, err := Count(context.Background(), src, "red", 1024)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, c)
}

func TestOpenTranscodesLatin1(t *testing.T) {
	// "café" with é as the single byte 0xE9.
	sentence := "le caf\xe9 est tr\xe8s bon et le caf\xe9 de la rue est fr\xe9quent\xe9 par les \xe9tudiants\n"
	path := writeFile(t, "latin1.txt", []byte(strings.Repeat(sentence, 20)))

	src, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer src.Close()
	assert.NotEqual(t, "utf-8", src.Charset)

	c, err := Count(context.Background(), src, "café", 1024)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), c.Matches)
	assert.Equal(t, uint64(20*16), c.Total)
}

func TestOpenKeepsUTF8(t *testing.T) {
	path := writeFile(t, "utf8.txt", []byte("café café thé\n"))

	src, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, "utf-8", src.Charset)

	c, err := Count(context.Background(), src, "café", 1024)
	require.NoError(t, err)
	assert.Equal(t, Counts{Matches: 2, Total: 3}, c)
}

func TestTrimPartialRune(t *testing.T) {
	full := []byte("café")
	assert.Equal(t, full, trimPartialRune(full))
	assert.Equal(t, []byte("caf"), trimPartialRune(full[:len(full)-1]))
	assert.Equal(t, []byte("abc"), trimPartialRune([]byte("abc")))
}
