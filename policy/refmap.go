// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package policy

import (
	"sort"

	"code.dumpstack.io/tools/kclean/fs"
	"code.dumpstack.io/tools/kclean/kernel"
)

type pathInfo struct {
	owners map[kernel.ID]struct{}

	// dir paths are removed recursively
	dir bool
	// emptyDir paths are removed only once empty
	emptyDir bool
}

// RefMap maps every canonical real path to the set of kernels that own
// it. Ownership is what makes shared files (source trees, bind-mounted
// module dirs) safe: a path may only be deleted when no remaining
// kernel owns it. Orphaned auxiliary files are tracked with an empty
// owner set.
type RefMap struct {
	paths   map[string]*pathInfo
	byOwner map[kernel.ID][]string
}

// Resolve canonicalizes every file of every kernel and builds the
// ownership map. Canonicalization is mandatory: distinct-looking paths
// that are really the same file must count as one.
func Resolve(kernels []kernel.Kernel, orphans []kernel.File) RefMap {
	m := RefMap{
		paths:   make(map[string]*pathInfo),
		byOwner: make(map[kernel.ID][]string),
	}

	for _, k := range kernels {
		for _, f := range k.Files {
			real := fs.Realpath(f.Path)
			info := m.info(real, f)
			if _, owned := info.owners[k.ID]; owned {
				continue
			}
			info.owners[k.ID] = struct{}{}
			m.byOwner[k.ID] = append(m.byOwner[k.ID], real)
		}
	}

	for _, f := range orphans {
		m.info(fs.Realpath(f.Path), f)
	}

	return m
}

func (m RefMap) info(real string, f kernel.File) *pathInfo {
	info, found := m.paths[real]
	if !found {
		info = &pathInfo{owners: make(map[kernel.ID]struct{})}
		m.paths[real] = info
	}
	info.dir = info.dir || f.Dir
	info.emptyDir = info.emptyDir || f.Type == kernel.EmptyDir
	return info
}

// PathsOf returns the canonical paths owned by a kernel.
func (m RefMap) PathsOf(id kernel.ID) []string {
	return m.byOwner[id]
}

// Owners returns how many kernels currently own a path.
func (m RefMap) Owners(real string) int {
	if info, found := m.paths[real]; found {
		return len(info.owners)
	}
	return 0
}

// Orphans returns all paths with no owning kernel, i.e. auxiliary
// files whose version matched no discovered kernel.
func (m RefMap) Orphans() (paths []string) {
	for p, info := range m.paths {
		if len(info.owners) == 0 {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return
}

// disown removes a kernel from a path's owner set and reports whether
// the path is now unowned.
func (m RefMap) disown(real string, id kernel.ID) bool {
	info, found := m.paths[real]
	if !found {
		return false
	}
	delete(info.owners, id)
	return len(info.owners) == 0
}
