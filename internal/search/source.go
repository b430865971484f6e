package search

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// sniffBytes is how much of the decoded stream is inspected for type and charset.
const sniffBytes = 8 << 10

// ErrBinary is returned when an input does not look like text.
var ErrBinary = errors.New("input is not text")

// Options controls how inputs are opened and tokenized.
type Options struct {
	MaxTokenBytes int
	RejectBinary  bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxTokenBytes: 1 << 20,
		RejectBinary:  true,
	}
}

// Source is an opened input yielding UTF-8 text.
type Source struct {
	io.Reader

	// Charset is the detected source encoding, "utf-8" when no transcoding applies.
	Charset string
	// MIME is the detected content type of the decompressed stream.
	MIME string

	closers []io.Closer
}

// Close releases the decompressor and the underlying file.
func (s *Source) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Open opens path for tokenizing.
func Open(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src := &Source{Charset: "utf-8", closers: []io.Closer{f}}

	raw, err := decompress(path, f, src)
	if err != nil {
		src.Close()
		return nil, err
	}

	br := bufio.NewReaderSize(raw, sniffBytes)
	head, err := br.Peek(sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		src.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src.Reader = br

	if len(head) == 0 {
		src.MIME = "text/plain"
		return src, nil
	}

	mtype := mimetype.Detect(head)
	src.MIME = mtype.String()
	if opts.RejectBinary && !isText(mtype) && hasControlBytes(head) {
		src.Close()
		return nil, fmt.Errorf("%s: %w (%s)", path, ErrBinary, mtype.String())
	}

	if utf8.Valid(trimPartialRune(head)) {
		return src, nil
	}

	label := detectCharset(head)
	enc, name := charset.Lookup(label)
	if enc == nil {
		return src, nil
	}
	src.Charset = name
	src.Reader = enc.NewDecoder().Reader(br)
	return src, nil
}

func decompress(path string, f *os.File, src *Source) (io.Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		src.closers = append(src.closers, gz)
		return gz, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", path, err)
		}
		src.closers = append(src.closers, zr.IOReadCloser())
		return zr, nil
	default:
		return f, nil
	}
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// hasControlBytes reports whether the sample holds C0 control bytes that
// text never carries. A media signature alone is not enough: plain text
// may happen to start with "ID3 " or "GIF89a".
func hasControlBytes(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' && c != '\f' && c != '\v' && c != 0x1b {
			return true
		}
	}
	return false
}

// detectCharset guesses the encoding of a non-UTF-8 sample.
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "windows-1252"
	}
	return strings.ToLower(result.Charset)
}

// trimPartialRune drops an incomplete multi-byte sequence cut off by the sniff window.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
