package kernel

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
)

// fakeBzImage builds a minimal x86 boot protocol image carrying the
// given version string.
func fakeBzImage(version string) []byte {
	const verOffset = 0x40

	buf := make([]byte, 0x200+verOffset+0x100)
	copy(buf[0x202:], "HdrS")
	binary.LittleEndian.PutUint16(buf[0x20e:], verOffset)
	copy(buf[0x200+verOffset:], version+" (tester@host) #1 SMP")
	return buf
}

func rawImage(version string) []byte {
	payload := make([]byte, 0x1000)
	copy(payload[0x300:], "Linux version "+version+" (tester@host) #1")
	return payload
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadInternalVersionBzImage(t *testing.T) {
	assert := assert.New(t)

	path := writeTemp(t, "vmlinuz", fakeBzImage("5.15.0-test"))

	ver, err := ReadInternalVersion(path)
	assert.NoError(err)
	assert.Equal("5.15.0-test", ver)

	ver, ok := ProbeImage(path)
	assert.True(ok)
	assert.Equal("5.15.0-test", ver)
}

func TestReadInternalVersionGzip(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(rawImage("6.1.12-gentoo"))
	assert.NoError(err)
	assert.NoError(w.Close())

	path := writeTemp(t, "kernel", buf.Bytes())

	ver, err := ReadInternalVersion(path)
	assert.NoError(err)
	assert.Equal("6.1.12-gentoo", ver)
}

func TestReadInternalVersionZstd(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	assert.NoError(err)
	_, err = w.Write(rawImage("6.6.0"))
	assert.NoError(err)
	assert.NoError(w.Close())

	path := writeTemp(t, "kernel", buf.Bytes())

	ver, err := ReadInternalVersion(path)
	assert.NoError(err)
	assert.Equal("6.6.0", ver)
}

func TestProbeImageRejectsPlainFile(t *testing.T) {
	path := writeTemp(t, "config-5.15.0", []byte("CONFIG_FOO=y\n"))

	if _, ok := ProbeImage(path); ok {
		t.Fatal("plain file recognized as kernel image")
	}
}

func TestProbeImageRejectsGzippedConfig(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte("CONFIG_FOO=y\nCONFIG_BAR=m\n"))
	w.Close()

	path := writeTemp(t, "config-5.15.0.gz", buf.Bytes())

	if _, ok := ProbeImage(path); ok {
		t.Fatal("gzipped config recognized as kernel image")
	}
}

func TestProbeImageTruncatedVersion(t *testing.T) {
	assert := assert.New(t)

	// HdrS signature but the version offset points past EOF
	buf := make([]byte, 0x210)
	copy(buf[0x202:], "HdrS")
	binary.LittleEndian.PutUint16(buf[0x20e:], 0x4000)

	path := writeTemp(t, "vmlinuz", buf)

	ver, ok := ProbeImage(path)
	assert.True(ok, "image signature must still be recognized")
	assert.Empty(ver)
}

func TestReadInternalVersionEFIUname(t *testing.T) {
	assert := assert.New(t)

	// PE image with a single .uname section, as written by ukify
	uname := []byte("6.2.0-uki")

	coff := 0x40
	sections := coff + 24
	data := sections + 40

	buf := make([]byte, data+len(uname))
	copy(buf, "MZ")
	binary.LittleEndian.PutUint32(buf[0x3c:], uint32(coff))
	copy(buf[coff:], "PE\x00\x00")
	binary.LittleEndian.PutUint16(buf[coff+6:], 1)  // sections
	binary.LittleEndian.PutUint16(buf[coff+20:], 0) // opt header

	copy(buf[sections:], ".uname\x00\x00")
	binary.LittleEndian.PutUint32(buf[sections+8:], uint32(len(uname)))
	binary.LittleEndian.PutUint32(buf[sections+20:], uint32(data))
	copy(buf[data:], uname)

	path := writeTemp(t, "uki.efi", buf)

	ver, err := ReadInternalVersion(path)
	assert.NoError(err)
	assert.Equal("6.2.0-uki", ver)
}
