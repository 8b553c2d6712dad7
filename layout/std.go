// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package layout

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/fs"
	"code.dumpstack.io/tools/kclean/kernel"
)

// Std is the flat /boot layout used by pre-systemd-boot bootloaders:
// all kernel files sit directly in the boot directory and are named
// PREFIX-VERSION.
type Std struct {
	p Params
}

func (l *Std) Name() string { return "std" }

var stdPrefixes = []struct {
	ftype  kernel.FileType
	prefix string
}{
	{kernel.Image, "vmlinuz-"},
	{kernel.Image, "vmlinux-"},
	{kernel.Image, "kernel-"},
	{kernel.Image, "bzImage-"},
	{kernel.SystemMap, "System.map-"},
	{kernel.Config, "config-"},
	{kernel.Initramfs, "initramfs-"},
	{kernel.Initramfs, "initrd-"},
}

// suffixes that are part of the file name, not the version
var stdSuffixes = []string{
	".img", // initramfs
	".bz2", // config
	".gz",
	".lz",
	".xz",
	".png", // refind icon
	".efi", // efistub
}

type stdImage struct {
	path string
	real string
}

// stdDirs lists the scanned directories: the boot directory itself and
// the EFI stub locations distros install to. The boot directory must
// exist; the others are optional.
func stdDirs(p Params) []string {
	distro := distroName(p.root())
	return []string{
		p.bootDir(),
		filepath.Join(p.bootDir(), "EFI/EFI", distro),
		filepath.Join(p.bootDir(), "efi/EFI", distro),
		filepath.Join(p.bootDir(), "EFI", distro),
		filepath.Join(p.root(), "efi/EFI", distro),
	}
}

// distroName reads NAME from os-release, the directory name EFI stub
// installs use under the ESP. Defaults to "Linux".
func distroName(root string) string {
	for _, p := range []string{"etc/os-release", "usr/lib/os-release"} {
		buf, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(buf), "\n") {
			name, found := strings.CutPrefix(line, "NAME=")
			if !found {
				continue
			}
			if name = strings.Trim(name, `"' `); name != "" {
				return name
			}
		}
	}
	return "Linux"
}

func (l *Std) Discover() (kernels []kernel.Kernel, orphans []kernel.File,
	err error) {

	moduleDict := moduleFiles(l.p)

	type dirEntry struct {
		dir string
		e   os.DirEntry
	}
	var found []dirEntry
	for i, dir := range stdDirs(l.p) {
		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			if i == 0 {
				err = DiscoveryError{Dir: dir, Err: rerr}
				return
			}
			continue
		}
		for _, e := range entries {
			found = append(found, dirEntry{dir: dir, e: e})
		}
	}

	images := make(map[string]stdImage)
	type verFile struct {
		file kernel.File
		ver  string
	}
	var otherFiles []verFile

	for _, de := range found {
		e := de.e
		fn := e.Name()
		if strings.HasPrefix(fn, ".") || strings.HasSuffix(fn, ".sig") {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 || !e.Type().IsRegular() {
			continue
		}
		ver := versionOf(fn)
		if ver == "" {
			continue
		}
		path := filepath.Join(de.dir, fn)

		// kernel images are recognized by content, whatever the
		// file is called
		if real, isImage := kernel.ProbeImage(path); isImage {
			if prev, dup := images[ver]; dup {
				if fs.Realpath(prev.path) == fs.Realpath(path) {
					continue
				}
				err = AmbiguousKernelError{
					Version: ver,
					First:   prev.path,
					Second:  path,
				}
				return nil, nil, err
			}
			images[ver] = stdImage{path: path, real: real}
			continue
		}

		for _, p := range stdPrefixes {
			if !strings.HasPrefix(fn, p.prefix) {
				continue
			}
			ftype := p.ftype
			if strings.HasSuffix(fn, ".png") {
				ftype = kernel.Misc
			}
			if !l.p.excluded(ftype) {
				otherFiles = append(otherFiles, verFile{
					file: kernel.File{Type: ftype, Path: path},
					ver:  ver,
				})
			}
			break
		}
	}

	versions := make([]string, 0, len(images))
	for ver := range images {
		versions = append(versions, ver)
	}
	sort.Strings(versions)

	byVersion := make(map[string]int)
	for _, ver := range versions {
		img := images[ver]
		k := kernel.Kernel{
			Version:     ver,
			RealVersion: img.real,
			Layout:      "std",
			Files: []kernel.File{
				{Type: kernel.Image, Path: img.path},
			},
		}
		k.Files = append(k.Files, moduleDict[k.EffectiveVersion()]...)
		byVersion[ver] = len(kernels)
		kernels = append(kernels, k)
	}

	// attach remaining files to the kernel with the same apparent
	// version; the rest are orphans
	for _, vf := range otherFiles {
		if i, found := byVersion[vf.ver]; found {
			kernels[i].Files = append(kernels[i].Files, vf.file)
		} else {
			log.Debug().Str("path", vf.file.Path).
				Str("version", vf.ver).
				Msg("no kernel image for this version")
			orphans = append(orphans, vf.file)
		}
	}

	// module directories whose release matches no discovered kernel
	releases := make([]string, 0, len(moduleDict))
	for release := range moduleDict {
		releases = append(releases, release)
	}
	sort.Strings(releases)
	for _, release := range releases {
		if stdAssociated(kernels, release) {
			continue
		}
		orphans = append(orphans, moduleDict[release]...)
	}

	return kernels, orphans, nil
}

func stdAssociated(kernels []kernel.Kernel, release string) bool {
	for _, k := range kernels {
		if k.EffectiveVersion() == release || k.Version == release {
			return true
		}
	}
	return false
}

// versionOf extracts the version from a PREFIX-VERSION file name,
// stripping known suffixes. An ".old" compound keeps its ".old"
// marker: initramfs-5.15.img.old -> 5.15.old.
func versionOf(fn string) string {
	_, ver, found := strings.Cut(fn, "-")
	if !found || ver == "" {
		return ""
	}
	for _, suffix := range stdSuffixes {
		if strings.HasSuffix(ver, suffix) {
			return ver[:len(ver)-len(suffix)]
		}
		if strings.HasSuffix(ver, suffix+".old") {
			return ver[:len(ver)-len(suffix)-len(".old")] + ".old"
		}
	}
	return ver
}
