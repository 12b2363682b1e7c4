package codec

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	. "github.com/warpfork/go-errcat"
	xi2xz "github.com/xi2/xz"

	"github.com/bazpack/baz/api"
)

/*
	A compression filter wraps the raw container byte stream.

	All registered filters can decode (containers from other machines may
	have been written by any filter in the family); only some can encode.
	Encode selection walks a preference list and takes the first filter
	that is encode-capable -- that walk is the availability fallback.
*/
type Filter interface {
	Name() string
	Magic() []byte
	NewReader(r io.Reader) (io.Reader, error)
}

type CompressingFilter interface {
	Filter
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

// Registration order is also magic-sniffing order.
var filters = []Filter{
	zstdFilter{},
	xzFilter{},
	gzipFilter{},
	bzip2Filter{},
}

/*
	The default encode preference: best ratio/speed first,
	gzip as the universally available baseline.
	(xz sits in the middle for decode compatibility with containers
	written by other implementations; our xz support is read-only,
	so encode selection skips over it.)
*/
var DefaultPreference = []string{"zstd", "xz", "gzip"}

func SelectEncoder(preference []string) (CompressingFilter, error) {
	for _, want := range preference {
		for _, f := range filters {
			if f.Name() != want {
				continue
			}
			if cf, ok := f.(CompressingFilter); ok {
				return cf, nil
			}
		}
	}
	return nil, Errorf(api.ErrCodecFailed, "no usable compression filter (tried %v)", preference)
}

func sniffFilter(header []byte) (Filter, error) {
	for _, f := range filters {
		if bytes.HasPrefix(header, f.Magic()) {
			return f, nil
		}
	}
	return nil, Errorf(api.ErrCodecFailed, "unrecognized container compression (magic bytes %x)", shorten(header, 6))
}

func shorten(bs []byte, n int) []byte {
	if len(bs) > n {
		return bs[:n]
	}
	return bs
}

type zstdFilter struct{}

func (zstdFilter) Name() string  { return "zstd" }
func (zstdFilter) Magic() []byte { return []byte{0x28, 0xb5, 0x2f, 0xfd} }
func (zstdFilter) NewReader(r io.Reader) (io.Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}
func (zstdFilter) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

type gzipFilter struct{}

func (gzipFilter) Name() string  { return "gzip" }
func (gzipFilter) Magic() []byte { return []byte{0x1f, 0x8b} }
func (gzipFilter) NewReader(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}
func (gzipFilter) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

// xz is decode-only: plenty of containers in the wild are xz'd,
// but we never produce new ones.
type xzFilter struct{}

func (xzFilter) Name() string  { return "xz" }
func (xzFilter) Magic() []byte { return []byte{0xfd, '7', 'z', 'X', 'Z', 0x00} }
func (xzFilter) NewReader(r io.Reader) (io.Reader, error) {
	return xi2xz.NewReader(r, 0)
}

// bzip2 is decode-only.
type bzip2Filter struct{}

func (bzip2Filter) Name() string  { return "bzip2" }
func (bzip2Filter) Magic() []byte { return []byte{'B', 'Z', 'h'} }
func (bzip2Filter) NewReader(r io.Reader) (io.Reader, error) {
	return bzip2.NewReader(r), nil
}
