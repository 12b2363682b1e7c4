/*
	The container codec serializes a directory tree (the expanded form of
	a repository) into a single compressed tar stream, and expands such a
	stream back into a directory.

	Encode introduces one implicit wrapping directory (named after the
	source dir's basename), the way a plain `tar -C parent dirname` would;
	Decode strips exactly one leading path element again, so the dest dir
	directly contains the repository's contents rather than a nested copy.

	Round-trip correctness is the contract here, not byte-format novelty:
	anything in the zstd/xz/gzip/bzip2 tar family decodes.
*/
package codec

import (
	"archive/tar"
	"bufio"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
)

/*
	Stream the directory tree at srcDir into a single compressed file at
	destFile, using the first encode-capable filter in the preference list
	(pass nil for the default preference).

	srcDir is never modified.  destFile is removed again if encoding fails
	partway, so a failed encode leaves no half-written container behind.
*/
func Encode(srcDir, destFile string, preference []string) error {
	if srcDir == "" || destFile == "" {
		return Errorf(api.ErrUsage, "codec: encode requires both a source dir and a destination file")
	}
	if preference == nil {
		preference = DefaultPreference
	}
	filter, err := SelectEncoder(preference)
	if err != nil {
		return err
	}
	srcInfo, err := os.Stat(srcDir)
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: cannot read source dir: %s", err)
	}
	if !srcInfo.IsDir() {
		return Errorf(api.ErrCodecFailed, "codec: source %q is not a directory", srcDir)
	}

	f, err := os.OpenFile(destFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: cannot write container: %s", err)
	}
	if err := encodeInto(f, srcDir, filter); err != nil {
		f.Close()
		os.Remove(destFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(destFile)
		return Errorf(api.ErrCodecFailed, "codec: cannot write container: %s", err)
	}
	return nil
}

func encodeInto(w io.Writer, srcDir string, filter CompressingFilter) error {
	zw, err := filter.NewWriter(w)
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: %s filter failed to start: %s", filter.Name(), err)
	}
	tw := tar.NewWriter(zw)

	wrapper := filepath.Base(filepath.Clean(srcDir))
	walkErr := filepath.WalkDir(srcDir, func(pth string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, pth)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		linkname := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if linkname, err = os.Readlink(pth); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, linkname)
		if err != nil {
			return err
		}
		if rel == "." {
			hdr.Name = wrapper + "/"
		} else {
			hdr.Name = path.Join(wrapper, filepath.ToSlash(rel))
			if info.IsDir() {
				hdr.Name += "/"
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			body, err := os.Open(pth)
			if err != nil {
				return err
			}
			defer body.Close()
			if _, err := io.Copy(tw, body); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		return Errorf(api.ErrCodecFailed, "codec: encode failed: %s", walkErr)
	}
	if err := tw.Close(); err != nil {
		return Errorf(api.ErrCodecFailed, "codec: encode failed: %s", err)
	}
	if err := zw.Close(); err != nil {
		return Errorf(api.ErrCodecFailed, "codec: encode failed: %s", err)
	}
	return nil
}

/*
	Expand the container at srcFile into destDir, dropping the implicit
	wrapping directory that Encode introduces.  The compression family is
	autodetected by magic bytes.
*/
func Decode(srcFile, destDir string) error {
	if srcFile == "" || destDir == "" {
		return Errorf(api.ErrUsage, "codec: decode requires both a source file and a destination dir")
	}
	f, err := os.Open(srcFile)
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: cannot read container: %s", err)
	}
	defer f.Close()
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return Errorf(api.ErrCodecFailed, "codec: cannot use dest dir: %s", err)
	}

	br := bufio.NewReader(f)
	header, err := br.Peek(8)
	if err != nil && err != io.EOF {
		return Errorf(api.ErrCodecFailed, "codec: cannot read container: %s", err)
	}
	filter, err := sniffFilter(header)
	if err != nil {
		return err
	}
	zr, err := filter.NewReader(br)
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: corrupt %s stream: %s", filter.Name(), err)
	}
	return decodeFrom(tar.NewReader(zr), destDir)
}

func decodeFrom(tr *tar.Reader, destDir string) error {
	// Dir mtimes get re-paved after all placement: files landing inside a
	// dir bump the dir's mtime, so setting them on the way through would
	// be wasted work.
	type dirTime struct {
		path string
		hdr  *tar.Header
	}
	var dirs []dirTime

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break // end of archive
		}
		if err != nil {
			return Errorf(api.ErrCodecFailed, "codec: corrupt container tar: %s", err)
		}
		rel, ok := stripWrapper(hdr.Name)
		if !ok {
			return Errorf(api.ErrCodecFailed, "codec: corrupt container tar: entry %q escapes the base dir", hdr.Name)
		}
		if rel == "." {
			continue // the wrapper dir itself
		}
		pth := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(pth), 0755); err != nil {
			return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(pth, hdr.FileInfo().Mode().Perm()); err != nil {
				return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
			}
			dirs = append(dirs, dirTime{pth, hdr})
		case tar.TypeReg:
			if err := placeFile(pth, hdr, tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.Remove(pth)
			if err := os.Symlink(hdr.Linkname, pth); err != nil {
				return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
			}
		case tar.TypeLink:
			targetRel, ok := stripWrapper(hdr.Linkname)
			if !ok {
				return Errorf(api.ErrCodecFailed, "codec: corrupt container tar: hardlink %q escapes the base dir", hdr.Linkname)
			}
			os.Remove(pth)
			if err := os.Link(filepath.Join(destDir, filepath.FromSlash(targetRel)), pth); err != nil {
				return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
			}
		default:
			return Errorf(api.ErrCodecFailed, "codec: corrupt container tar: %q is not a supported entry type", hdr.Typeflag)
		}
	}

	// Deepest dirs first, so repaving a parent is not disturbed again.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].path) > len(dirs[j].path) })
	for _, d := range dirs {
		if err := os.Chtimes(d.path, d.hdr.ModTime, d.hdr.ModTime); err != nil {
			return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
		}
	}
	return nil
}

func placeFile(pth string, hdr *tar.Header, body io.Reader) error {
	f, err := os.OpenFile(pth, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
	}
	if err := f.Close(); err != nil {
		return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
	}
	if err := os.Chtimes(pth, hdr.ModTime, hdr.ModTime); err != nil {
		return Errorf(api.ErrCodecFailed, "codec: error while unpacking: %s", err)
	}
	return nil
}

/*
	Drop the single implicit wrapper element from a tar entry name,
	returning the remaining path relative to the dest dir.
	Returns ok=false for names that climb out of the base via '..'.
*/
func stripWrapper(name string) (string, bool) {
	cleaned := path.Clean(strings.TrimPrefix(name, "./"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", false
	}
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) < 2 {
		return ".", true
	}
	return parts[1], true
}
