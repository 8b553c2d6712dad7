// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package kernel

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

var (
	// ErrNotKernelImage means the file matches no known boot image
	// format.
	ErrNotKernelImage = errors.New("not a kernel image")
	// ErrVersionNotFound means the file looks like a kernel image
	// but no embedded version string could be extracted.
	ErrVersionNotFound = errors.New("version string not found in kernel image")
)

// At most this much of an image is read and inspected.
const imageWindow = 64 << 20

const versionTail = 0x100

// ProbeImage inspects path as a potential kernel image. ok reports
// whether the file is recognized as a boot image at all; version is
// the embedded version string, empty when the image is recognized but
// its version cannot be read (the caller then falls back to the
// nominal version).
func ProbeImage(path string) (version string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, imageWindow))
	if err != nil {
		return
	}

	verbuf, ok := probeBuffer(buf)
	if !ok {
		return
	}

	version, err = parseVersionBuf(verbuf)
	if err != nil {
		log.Warn().Err(err).Str("image", path).
			Msg("cannot read kernel version, using file name")
	}
	return
}

// ReadInternalVersion extracts the version string embedded in a kernel
// image.
func ReadInternalVersion(path string) (version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, imageWindow))
	if err != nil {
		return
	}

	verbuf, ok := probeBuffer(buf)
	if !ok {
		err = ErrNotKernelImage
		return
	}
	return parseVersionBuf(verbuf)
}

// probeBuffer tries each known image format in turn. ok means the
// buffer is a kernel image; verbuf is nil when the version location
// could not be read.
func probeBuffer(buf []byte) (verbuf []byte, ok bool) {
	if verbuf, ok = versionFromEFI(buf); ok {
		return
	}
	if verbuf, ok = versionFromBzImage(buf); ok {
		return
	}
	return versionFromRaw(buf)
}

// parseVersionBuf takes the raw buffer at the version string location
// and cuts out the version itself, i.e. everything up to the first
// space. A buffer without the space terminator is truncated and
// rejected.
func parseVersionBuf(verbuf []byte) (version string, err error) {
	if verbuf == nil {
		err = ErrVersionNotFound
		return
	}
	if i := bytes.IndexByte(verbuf, 0); i >= 0 {
		verbuf = verbuf[:i]
	}
	sp := bytes.IndexByte(verbuf, ' ')
	if sp <= 0 {
		err = ErrVersionNotFound
		return
	}
	version = string(verbuf[:sp])
	return
}

// versionFromBzImage reads the version via the x86 boot protocol
// header: "HdrS" signature at 0x202, version string offset at 0x20e
// (relative to 0x200).
func versionFromBzImage(buf []byte) (verbuf []byte, ok bool) {
	if len(buf) < 0x210 || !bytes.Equal(buf[0x202:0x206], []byte("HdrS")) {
		return
	}
	ok = true

	offset := 0x200 + int(binary.LittleEndian.Uint16(buf[0x20e:0x210]))
	if offset >= len(buf) {
		return
	}
	end := offset + versionTail
	if end > len(buf) {
		end = len(buf)
	}
	verbuf = buf[offset:end]
	return
}

// versionFromRaw scans a raw (possibly compressed) kernel binary for
// the "Linux version " boot message. The message is the signature: a
// decompressible payload without it (e.g. a gzipped config) is not an
// image. Payloads with a known compression magic that cannot be
// decoded at all (lzo) are still treated as images, with no version.
func versionFromRaw(buf []byte) (verbuf []byte, ok bool) {
	data, compressed, err := decompress(buf)
	if err != nil {
		ok = compressed
		return
	}

	pos := bytes.Index(data, []byte("Linux version "))
	if pos == -1 {
		return
	}
	ok = true

	pos += len("Linux version ")
	end := pos + versionTail
	if end > len(data) {
		end = len(data)
	}
	verbuf = data[pos:end]

	// non-ASCII bytes at the start mean a false positive
	for _, b := range verbuf[:min(4, len(verbuf))] {
		if b < 40 || b > 176 {
			return nil, ok
		}
	}
	return
}

// versionFromEFI reads the version out of an EFI executable, handling
// zboot images and the .uname / .linux PE sections used by unified
// kernel images.
func versionFromEFI(buf []byte) (verbuf []byte, ok bool) {
	if len(buf) < 0x40 || !bytes.Equal(buf[:2], []byte("MZ")) {
		return
	}

	// zboot wraps a compressed raw image, see
	// drivers/firmware/efi/libstub/zboot-header.S
	if bytes.Equal(buf[4:8], []byte("zimg")) {
		offset := int(binary.LittleEndian.Uint32(buf[8:12]))
		size := int(binary.LittleEndian.Uint32(buf[12:16]))
		if offset >= len(buf) {
			return nil, true
		}
		if offset+size > len(buf) {
			size = len(buf) - offset
		}
		verbuf, _ = versionFromRaw(buf[offset : offset+size])
		return verbuf, true
	}

	coff := int(binary.LittleEndian.Uint32(buf[0x3c:0x40]))
	if coff+24 > len(buf) || !bytes.Equal(buf[coff:coff+4], []byte("PE\x00\x00")) {
		return
	}
	ok = true

	numSection := int(binary.LittleEndian.Uint16(buf[coff+6 : coff+8]))
	optHeaderSize := int(binary.LittleEndian.Uint16(buf[coff+20 : coff+22]))

	sections := coff + 24 + optHeaderSize
	for i := 0; i < numSection; i++ {
		row := sections + i*40
		if row+40 > len(buf) {
			return nil, ok
		}

		name := buf[row : row+8]
		size := int(binary.LittleEndian.Uint32(buf[row+8 : row+12]))
		offset := int(binary.LittleEndian.Uint32(buf[row+20 : row+24]))
		if offset >= len(buf) {
			continue
		}
		if offset+size > len(buf) {
			size = len(buf) - offset
		}

		switch {
		case bytes.Equal(name, []byte(".uname\x00\x00")):
			// ukify stores uname -r output verbatim; append
			// a terminator so parseVersionBuf accepts it
			verbuf = append(buf[offset:offset+size:offset+size],
				[]byte(" (ukify)")...)
			return
		case bytes.Equal(name, []byte(".linux\x00\x00")):
			section := buf[offset:]
			if verbuf, _ = versionFromBzImage(section); verbuf != nil {
				return
			}
			verbuf, _ = versionFromRaw(section)
			return
		}
	}
	return nil, ok
}

var compressionMagic = []struct {
	magic []byte
	name  string
}{
	{[]byte{0x1f, 0x8b, 0x08}, "gzip"},
	{[]byte{0x42, 0x5a, 0x68}, "bzip2"},
	{[]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, "xz"},
	{[]byte{0x5d, 0x00, 0x00}, "lzma"},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, "lz4"},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, "zstd"},
	{[]byte{0x89, 0x4c, 0x5a, 0x4f, 0x00, 0x0d, 0x0a, 0x1a, 0x0a}, "lzo"},
}

// decompress unwraps a compressed kernel binary. compressed reports
// whether a known compression magic was seen, even when decompression
// itself fails. Truncated streams are fine, whatever decompressed
// before the cut is returned.
func decompress(buf []byte) (data []byte, compressed bool, err error) {
	var format string
	for _, m := range compressionMagic {
		if bytes.HasPrefix(buf, m.magic) {
			format = m.name
			break
		}
	}
	if format == "" {
		data = buf
		return
	}
	compressed = true

	var r io.Reader
	switch format {
	case "gzip":
		r, err = gzip.NewReader(bytes.NewReader(buf))
	case "bzip2":
		r = bzip2.NewReader(bytes.NewReader(buf))
	case "xz":
		r, err = xz.NewReader(bytes.NewReader(buf))
	case "lzma":
		r, err = lzma.NewReader(bytes.NewReader(buf))
	case "lz4":
		r = lz4.NewReader(bytes.NewReader(buf))
	case "zstd":
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(bytes.NewReader(buf))
		if err == nil {
			defer zr.Close()
			r = zr
		}
	default:
		err = errors.New("no decompressor for " + format)
	}
	if err != nil {
		return
	}

	data, rerr := io.ReadAll(r)
	if rerr != nil && len(data) == 0 {
		err = rerr
	}
	return
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
