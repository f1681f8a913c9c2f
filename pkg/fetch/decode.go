package fetch

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/charmap"
)

const maxBodySize = 20 << 20

type codec struct {
	name   string
	decode func([]byte) ([]byte, error)
}

var codecs = []codec{
	{"gzip", decodeGzip},
	{"deflate", decodeDeflate},
	{"br", decodeBrotli},
	{"zstd", decodeZstd},
}

// decodeBody applies the codec named by Content-Encoding. When the
// result (or an identity body) still looks binary at 200-OK, the caller
// retries the raw bytes through every codec via decodeAny.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" || encoding == "identity" {
		return raw, nil
	}
	for _, c := range codecs {
		if c.name == encoding {
			out, err := c.decode(raw)
			if err != nil {
				return nil, &DecodeError{Encoding: encoding, BodyLen: len(raw)}
			}
			return out, nil
		}
	}
	return nil, &DecodeError{Encoding: encoding, BodyLen: len(raw)}
}

// decodeAny tries every codec in order and returns the first output
// that looks like text.
func decodeAny(raw []byte) ([]byte, bool) {
	for _, c := range codecs {
		if out, err := c.decode(raw); err == nil && looksLikeText(out) {
			return out, true
		}
	}
	return nil, false
}

func decodeGzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

func decodeDeflate(raw []byte) ([]byte, error) {
	// Servers disagree on whether "deflate" means zlib-wrapped or raw.
	if r, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		defer r.Close()
		if out, err := io.ReadAll(io.LimitReader(r, maxBodySize)); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(io.LimitReader(fr, maxBodySize))
}

func decodeBrotli(raw []byte) ([]byte, error) {
	return io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(raw)), maxBodySize))
}

func decodeZstd(raw []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

// looksLikeText reports whether decoded bytes resemble page content
// rather than compressed or binary garbage.
func looksLikeText(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	sample := b
	if len(sample) > 512 {
		sample = sample[:512]
	}
	control := 0
	for _, c := range sample {
		if c == 0 {
			return false
		}
		if c < 0x09 || (c > 0x0d && c < 0x20) {
			control++
		}
	}
	return control*10 < len(sample)
}

// decodeCharset converts a byte body to a UTF-8 string, walking the
// common legacy charsets when the bytes are not valid UTF-8.
func decodeCharset(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252, charmap.ISO8859_15} {
		if out, err := cm.NewDecoder().Bytes(b); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	return string(bytes.ToValidUTF8(b, []byte("�")))
}
