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

// BlSpec implements the Bootloader Specification layout. Type 1
// entries live in one subdirectory per kernel generation under
// <boot>/<machine-id>, with the image literally named "linux" and the
// initramfs "initrd". Type 2 entries are unified kernel images named
// <machine-id>-<version>.efi under <boot>/EFI/Linux.
type BlSpec struct {
	p Params

	// token identifies this machine's boot entries
	token string
	// dir is the resolved <boot>/<machine-id> directory (type 1)
	dir string
	// ukiDir is <boot>/EFI/Linux (type 2)
	ukiDir string
}

func (l *BlSpec) Name() string { return "blspec" }

// detect resolves the entry token and the entry directories; the
// layout is only usable when at least one of them exists.
func (l *BlSpec) detect() bool {
	l.token = machineID(l.p.root())
	if l.token == "" {
		return false
	}
	l.dir = markerDir(l.p.bootDir(), l.token)
	if d := filepath.Join(l.p.bootDir(), "EFI", "Linux"); fs.DirExists(d) {
		l.ukiDir = d
	}
	return l.dir != "" || l.ukiDir != ""
}

var blspecNames = map[string]kernel.FileType{
	"linux":  kernel.Image,
	"initrd": kernel.Initramfs,
}

func (l *BlSpec) Discover() (kernels []kernel.Kernel, orphans []kernel.File,
	err error) {

	if l.dir == "" && l.ukiDir == "" && !l.detect() {
		err = DiscoveryError{Dir: l.p.bootDir(),
			Err: os.ErrNotExist}
		return
	}

	moduleDict := moduleFiles(l.p)

	if l.dir != "" {
		kernels, orphans, err = l.discoverEntries(moduleDict)
		if err != nil {
			return
		}
	}
	if l.ukiDir != "" {
		kernels = append(kernels, l.discoverUKIs(moduleDict)...)
	}

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

// discoverEntries scans the type 1 per-version entry directories.
func (l *BlSpec) discoverEntries(moduleDict map[string][]kernel.File) (
	kernels []kernel.Kernel, orphans []kernel.File, err error) {

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		err = DiscoveryError{Dir: l.dir, Err: err}
		return
	}

	for _, e := range entries {
		ver := e.Name()
		if strings.HasPrefix(ver, ".") {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 || !e.IsDir() {
			continue
		}
		dirPath := filepath.Join(l.dir, ver)

		k := kernel.Kernel{Version: ver, Layout: "bls"}
		names, rerr := os.ReadDir(dirPath)
		if rerr != nil {
			log.Warn().Err(rerr).Str("dir", dirPath).
				Msg("cannot read boot entry")
			continue
		}

		for _, f := range names {
			fn := f.Name()
			if strings.HasPrefix(fn, ".") {
				continue
			}
			path := filepath.Join(dirPath, fn)

			ftype, known := blspecNames[fn]
			if !known {
				ftype = kernel.Misc
			}
			if ftype == kernel.Image {
				real, isImage := kernel.ProbeImage(path)
				if isImage {
					k.RealVersion = real
				}
			}
			if !l.p.excluded(ftype) {
				k.Files = append(k.Files, kernel.File{
					Type: ftype,
					Path: path,
				})
			}
		}

		if k.ImagePath() == "" {
			// no image in the entry, its leftovers are orphans
			orphans = append(orphans, k.Files...)
			continue
		}

		k.Files = append(k.Files,
			moduleDict[k.EffectiveVersion()]...)
		// the entry directory itself goes once it is empty
		k.Files = append(k.Files, kernel.File{
			Type: kernel.EmptyDir,
			Path: dirPath,
		})

		kernels = append(kernels, k)
	}

	return kernels, orphans, nil
}

// discoverUKIs scans the type 2 unified kernel images. Only files
// carrying this machine's entry token (or the distro prefix) are
// considered; anything else in the ESP belongs to someone else.
func (l *BlSpec) discoverUKIs(moduleDict map[string][]kernel.File) (
	kernels []kernel.Kernel) {

	entries, err := os.ReadDir(l.ukiDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", l.ukiDir).
			Msg("cannot read UKI directory")
		return
	}

	for _, e := range entries {
		fn := e.Name()
		if strings.HasPrefix(fn, ".") || !e.Type().IsRegular() {
			continue
		}
		basename := strings.TrimSuffix(fn, ".efi")
		if basename == fn {
			continue
		}
		ver := strings.TrimPrefix(basename, l.token+"-")
		ver = strings.TrimPrefix(ver, "gentoo-")
		if ver == basename {
			log.Debug().Str("file", fn).
				Msg("skipping foreign UKI")
			continue
		}
		path := filepath.Join(l.ukiDir, fn)

		k := kernel.Kernel{Version: ver, Layout: "uki"}
		if real, isImage := kernel.ProbeImage(path); isImage {
			k.RealVersion = real
		}
		k.Files = append(k.Files, kernel.File{
			Type: kernel.Image,
			Path: path,
		})

		icon := filepath.Join(l.ukiDir, basename+".png")
		if !l.p.excluded(kernel.Misc) && fs.PathExists(icon) {
			k.Files = append(k.Files, kernel.File{
				Type: kernel.Misc,
				Path: icon,
			})
		}
		k.Files = append(k.Files, moduleDict[k.EffectiveVersion()]...)

		kernels = append(kernels, k)
	}
	return
}
