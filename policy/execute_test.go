package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"code.dumpstack.io/tools/kclean/fs"
	"code.dumpstack.io/tools/kclean/kernel"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mkdir(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyRemovesKernelFiles(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	image := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.0"))
	initrd := touch(t, filepath.Join(tmp, "boot/initramfs-5.15.0.img"))
	modules := mkdir(t, filepath.Join(tmp, "lib/modules/5.15.0"))
	touch(t, filepath.Join(modules, "modules.dep"))

	ks := []kernel.Kernel{{
		ID:      0,
		Version: "5.15.0",
		Files: []kernel.File{
			{Type: kernel.Image, Path: image},
			{Type: kernel.Initramfs, Path: initrd},
			{Type: kernel.Modules, Path: modules, Dir: true},
		},
	}}
	m := Resolve(ks, nil)

	rep := Apply(ks, map[kernel.ID]Verdict{0: Remove}, m, false)

	assert.Empty(rep.Errors)
	assert.False(fs.PathExists(image))
	assert.False(fs.PathExists(initrd))
	assert.False(fs.PathExists(modules))
	assert.Len(rep.Kernels, 1)
	assert.Len(rep.Deleted(), 3)
}

func TestApplyKeepsSharedFiles(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	// one source tree shared by a removed and a kept kernel
	src := mkdir(t, filepath.Join(tmp, "usr/src/linux-5.15"))
	imageA := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.0"))
	imageB := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.1"))

	ks := []kernel.Kernel{
		{
			ID:      0,
			Version: "5.15.0",
			Files: []kernel.File{
				{Type: kernel.Image, Path: imageA},
				{Type: kernel.Build, Path: src, Dir: true},
			},
		},
		{
			ID:      1,
			Version: "5.15.1",
			Files: []kernel.File{
				{Type: kernel.Image, Path: imageB},
				{Type: kernel.Build, Path: src, Dir: true},
			},
		},
	}
	m := Resolve(ks, nil)

	rep := Apply(ks, map[kernel.ID]Verdict{
		0: Remove,
		1: KeepRunning,
	}, m, false)

	assert.Empty(rep.Errors)
	assert.False(fs.PathExists(imageA))
	assert.True(fs.PathExists(imageB))
	assert.True(fs.PathExists(src), "shared source tree must survive")

	// the report still mentions the shared path, marked kept
	var sharedKept bool
	for _, f := range rep.Kernels[0].Files {
		if f.Path == fs.Realpath(src) && !f.Deleted {
			sharedKept = true
		}
	}
	assert.True(sharedKept)
}

func TestApplySharedBetweenTwoRemoved(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	src := mkdir(t, filepath.Join(tmp, "usr/src/linux"))
	imageA := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.14.0"))
	imageB := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.0"))

	ks := []kernel.Kernel{
		{ID: 0, Version: "5.14.0", Files: []kernel.File{
			{Type: kernel.Image, Path: imageA},
			{Type: kernel.Build, Path: src, Dir: true},
		}},
		{ID: 1, Version: "5.15.0", Files: []kernel.File{
			{Type: kernel.Image, Path: imageB},
			{Type: kernel.Build, Path: src, Dir: true},
		}},
	}
	m := Resolve(ks, nil)

	rep := Apply(ks, map[kernel.ID]Verdict{
		0: Remove,
		1: Remove,
	}, m, false)

	assert.Empty(rep.Errors)
	assert.False(fs.PathExists(src),
		"path owned only by removed kernels must go")
}

func TestApplyOrphans(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	orphan := touch(t, filepath.Join(tmp, "boot/initramfs-5.14.0.img"))

	m := Resolve(nil, []kernel.File{
		{Type: kernel.Initramfs, Path: orphan},
	})

	rep := Apply(nil, nil, m, false)

	assert.Empty(rep.Errors)
	assert.False(fs.PathExists(orphan))
	assert.Len(rep.Orphans, 1)
	assert.True(rep.Orphans[0].Deleted)
}

func TestApplyDryRun(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	image := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.0"))

	ks := []kernel.Kernel{{ID: 0, Version: "5.15.0",
		Files: []kernel.File{{Type: kernel.Image, Path: image}}}}
	m := Resolve(ks, nil)

	rep := Apply(ks, map[kernel.ID]Verdict{0: Remove}, m, true)

	assert.True(rep.DryRun)
	assert.True(fs.PathExists(image), "dry run must not delete")
	assert.Equal([]string{fs.Realpath(image)}, rep.Deleted())
}

func TestApplyEmptyDirOnlyWhenEmpty(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	entry := filepath.Join(tmp, "boot/machineid/5.15.0")
	image := touch(t, filepath.Join(entry, "linux"))
	keepsake := touch(t, filepath.Join(entry, "keep.me"))

	ks := []kernel.Kernel{{ID: 0, Version: "5.15.0",
		Files: []kernel.File{
			{Type: kernel.Image, Path: image},
			{Type: kernel.EmptyDir, Path: entry},
		}}}
	m := Resolve(ks, nil)

	rep := Apply(ks, map[kernel.ID]Verdict{0: Remove}, m, false)

	assert.Empty(rep.Errors)
	assert.False(fs.PathExists(image))
	// a leftover file keeps the directory alive
	assert.True(fs.PathExists(keepsake))
	assert.True(fs.PathExists(entry))
}

func TestApplyIdempotent(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	image := touch(t, filepath.Join(tmp, "boot/vmlinuz-5.15.0"))

	ks := []kernel.Kernel{{ID: 0, Version: "5.15.0",
		Files: []kernel.File{{Type: kernel.Image, Path: image}}}}

	rep := Apply(ks, map[kernel.ID]Verdict{0: Remove},
		Resolve(ks, nil), false)
	assert.Len(rep.Deleted(), 1)

	// second run: the kernel is gone, nothing is discovered and
	// nothing must be deleted
	rep = Apply(nil, nil, Resolve(nil, nil), false)
	assert.Empty(rep.Deleted())
	assert.Empty(rep.Errors)
}

func TestResolveSharedOwnership(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	src := mkdir(t, filepath.Join(tmp, "src"))

	ks := []kernel.Kernel{
		{ID: 0, Version: "a", Files: []kernel.File{
			{Type: kernel.Build, Path: src, Dir: true}}},
		{ID: 1, Version: "b", Files: []kernel.File{
			{Type: kernel.Build, Path: src, Dir: true}}},
	}
	m := Resolve(ks, nil)

	assert.Equal(2, m.Owners(fs.Realpath(src)))
}

func TestResolveCanonicalizesSymlinks(t *testing.T) {
	assert := assert.New(t)
	tmp := t.TempDir()

	target := touch(t, filepath.Join(tmp, "vmlinuz-5.15.0"))
	link := filepath.Join(tmp, "vmlinuz")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	ks := []kernel.Kernel{
		{ID: 0, Version: "a", Files: []kernel.File{
			{Type: kernel.Image, Path: target}}},
		{ID: 1, Version: "b", Files: []kernel.File{
			{Type: kernel.Image, Path: link}}},
	}
	m := Resolve(ks, nil)

	// both kernels own the same real file
	assert.Equal(2, m.Owners(fs.Realpath(target)))
}
