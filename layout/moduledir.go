// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package layout

import (
	"os"
	"path/filepath"
	"strings"

	"code.dumpstack.io/tools/kclean/fs"
	"code.dumpstack.io/tools/kclean/kernel"
)

// moduleFiles maps each kernel release found under <root>/lib/modules
// to its removable files: the dereferenced build/source tree first,
// the module directory itself last, so the top directory is never
// removed before its contents.
func moduleFiles(p Params) map[string][]kernel.File {
	moduleDict := make(map[string][]kernel.File)

	dir := filepath.Join(p.root(), "lib/modules")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return moduleDict
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 || !e.IsDir() {
			continue
		}

		var files []kernel.File
		if !p.excluded(kernel.Build) {
			if build := buildDir(path); build != "" {
				files = append(files, kernel.File{
					Type: kernel.Build,
					Path: build,
					Dir:  true,
				})
			}
		}
		if !p.excluded(kernel.Modules) {
			files = append(files, kernel.File{
				Type: kernel.Modules,
				Path: path,
				Dir:  true,
			})
		}

		moduleDict[e.Name()] = files
	}
	return moduleDict
}

// buildDir dereferences the build (or source) symlink inside a module
// directory, so shared source trees are reference-counted under their
// real path.
func buildDir(moduleDir string) string {
	for _, name := range []string{"build", "source"} {
		link := filepath.Join(moduleDir, name)
		fi, err := os.Lstat(link)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			continue
		}
		real := fs.Realpath(link)
		if fs.DirExists(real) {
			return real
		}
	}
	return ""
}
