// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package policy

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/kernel"
)

// DeletionError is a per-path failure during execution. Collected into
// the report, never aborts the remaining deletions.
type DeletionError struct {
	Path string
	Err  error
}

func (e DeletionError) Error() string {
	return fmt.Sprintf("cannot remove %s: %v", e.Path, e.Err)
}

func (e DeletionError) Unwrap() error { return e.Err }

// FileReport is one path of a removed kernel: deleted, or kept because
// another kernel still owns it.
type FileReport struct {
	Path    string
	Deleted bool
}

// KernelReport is the executor outcome for one removed kernel.
type KernelReport struct {
	Kernel  kernel.Kernel
	Verdict Verdict
	Files   []FileReport
}

// Report is what Apply hands back to the caller for display.
type Report struct {
	DryRun  bool
	Kernels []KernelReport
	Orphans []FileReport
	Errors  []DeletionError
}

// Deleted lists every path that was (or, dry run, would be) removed.
func (r Report) Deleted() (paths []string) {
	for _, k := range r.Kernels {
		for _, f := range k.Files {
			if f.Deleted {
				paths = append(paths, f.Path)
			}
		}
	}
	for _, f := range r.Orphans {
		if f.Deleted {
			paths = append(paths, f.Path)
		}
	}
	return
}

// Apply executes the verdicts. All bookkeeping happens before any
// deletion: every removed kernel is first taken out of the owner sets,
// and only paths left with no owner are deleted, so a file shared with
// a kept kernel survives no matter the processing order. With dryRun
// the same bookkeeping runs but nothing is touched.
func Apply(ks []kernel.Kernel, verdicts map[kernel.ID]Verdict, m RefMap,
	dryRun bool) (rep Report) {

	rep.DryRun = dryRun

	var removed []kernel.Kernel
	for _, k := range ks {
		if verdicts[k.ID] == Remove {
			removed = append(removed, k)
		}
	}

	// snapshot before disowning, or removed kernels' files would
	// show up as orphans
	orphans := m.Orphans()

	deletable := make(map[string]bool)
	for _, k := range removed {
		for _, p := range m.PathsOf(k.ID) {
			if m.disown(p, k.ID) {
				deletable[p] = true
			}
		}
	}
	for _, p := range orphans {
		deletable[p] = true
	}

	deleted := deleteAll(deletable, m, dryRun, &rep)

	for _, k := range removed {
		kr := KernelReport{Kernel: k, Verdict: Remove}
		for _, p := range m.PathsOf(k.ID) {
			kr.Files = append(kr.Files, FileReport{
				Path:    p,
				Deleted: deleted[p],
			})
		}
		rep.Kernels = append(rep.Kernels, kr)
	}
	for _, p := range orphans {
		rep.Orphans = append(rep.Orphans, FileReport{
			Path:    p,
			Deleted: deleted[p],
		})
	}
	return
}

// deleteAll removes the given paths best-effort: regular files first,
// then directories deepest-first, empty-directory markers last, so a
// directory never goes before its contents.
func deleteAll(deletable map[string]bool, m RefMap, dryRun bool,
	rep *Report) map[string]bool {

	paths := make([]string, 0, len(deletable))
	for p := range deletable {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		pi, pj := m.paths[paths[i]], m.paths[paths[j]]
		di := pi.dir || pi.emptyDir
		dj := pj.dir || pj.emptyDir
		if di != dj {
			return !di
		}
		if pi.emptyDir != pj.emptyDir {
			return pj.emptyDir
		}
		ci := strings.Count(paths[i], "/")
		cj := strings.Count(paths[j], "/")
		if ci != cj {
			return ci > cj
		}
		return paths[i] < paths[j]
	})

	deleted := make(map[string]bool, len(paths))
	for _, p := range paths {
		info := m.paths[p]

		if dryRun {
			deleted[p] = true
			continue
		}

		var err error
		switch {
		case info.emptyDir:
			err = os.Remove(p)
			if errors.Is(err, syscall.ENOTEMPTY) ||
				errors.Is(err, syscall.EEXIST) {
				// still shared with something, keep it
				err = nil
				continue
			}
		case info.dir:
			err = os.RemoveAll(p)
		default:
			err = os.Remove(p)
		}

		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("cannot remove")
			rep.Errors = append(rep.Errors,
				DeletionError{Path: p, Err: err})
			continue
		}
		deleted[p] = true
	}
	return deleted
}
