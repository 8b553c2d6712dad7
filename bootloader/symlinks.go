// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import (
	"os"
	"path/filepath"

	"code.dumpstack.io/tools/kclean/fs"
)

// symlinks is the unconditional fallback: the kernel and kernel.old
// style symlinks maintained in the boot directory are taken as the
// bootable references.
type symlinks struct {
	p Params
}

func (s symlinks) Name() string { return "symlinks" }

var symlinkNames = []string{"vmlinuz", "vmlinux", "kernel", "bzImage"}

func (s symlinks) ReferencedPaths() (paths []string, err error) {
	for _, fn := range symlinkNames {
		for _, suffix := range []string{"", ".old"} {
			p := filepath.Join(s.p.bootDir(), fn+suffix)
			// follows symlinks, so dangling ones are skipped
			if _, serr := os.Stat(p); serr != nil {
				continue
			}
			paths = append(paths, fs.Realpath(p))
		}
	}
	return
}
