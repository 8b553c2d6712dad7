// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/fs"
	"code.dumpstack.io/tools/kclean/kernel"
)

// Layout discovers the kernels installed under a boot directory. Each
// Discover call re-scans the filesystem.
type Layout interface {
	Name() string
	Discover() (kernels []kernel.Kernel, orphans []kernel.File, err error)
}

// Params configure a layout scan.
type Params struct {
	// Root is the filesystem root, normally "/".
	Root string
	// BootDir overrides <root>/boot.
	BootDir string
	// Exclude lists file roles that must not be collected.
	Exclude map[kernel.FileType]bool
}

func (p Params) bootDir() string {
	if p.BootDir != "" {
		return p.BootDir
	}
	return filepath.Join(p.root(), "boot")
}

func (p Params) root() string {
	if p.Root == "" {
		return "/"
	}
	return p.Root
}

func (p Params) excluded(ft kernel.FileType) bool {
	return p.Exclude[ft]
}

// DiscoveryError means the boot directory cannot be scanned at all.
type DiscoveryError struct {
	Dir string
	Err error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("cannot scan %s: %v", e.Dir, e.Err)
}

func (e DiscoveryError) Unwrap() error { return e.Err }

// AmbiguousKernelError means two conflicting kernel images resolve to
// the same version key. The operator has to resolve it manually.
type AmbiguousKernelError struct {
	Version string
	First   string
	Second  string
}

func (e AmbiguousKernelError) Error() string {
	return fmt.Sprintf("two kernel images for version %s: %s and %s",
		e.Version, e.First, e.Second)
}

// Detect selects the layout for the given parameters: blspec when the
// machine-id marker directory is present under the boot directory or
// its EFI subdirectory, std otherwise. A non-auto name bypasses
// detection.
func Detect(p Params, name string) (l Layout, err error) {
	switch name {
	case "", "auto":
	case "std":
		return &Std{p: p}, nil
	case "blspec":
		b := &BlSpec{p: p}
		if !b.detect() {
			err = fmt.Errorf("blspec layout not present under %s",
				p.bootDir())
		}
		return b, err
	default:
		err = fmt.Errorf("unknown layout %q", name)
		return
	}

	b := &BlSpec{p: p}
	if b.detect() {
		log.Debug().Str("dir", b.dir).Str("uki", b.ukiDir).
			Msg("using blspec layout")
		return b, nil
	}

	log.Debug().Str("dir", p.bootDir()).Msg("using std layout")
	return &Std{p: p}, nil
}

// machineID reads the entry token identifying this machine's boot
// entries, preferring the explicit entry-token over machine-id.
func machineID(root string) string {
	for _, p := range []string{"etc/kernel/entry-token", "etc/machine-id"} {
		buf, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(buf)); id != "" {
			return id
		}
	}
	return ""
}

// markerDir locates <boot>/<token> or <boot>/EFI/<token>.
func markerDir(bootDir, token string) string {
	if token == "" {
		return ""
	}
	for _, d := range []string{
		filepath.Join(bootDir, token),
		filepath.Join(bootDir, "EFI", token),
	} {
		if fs.DirExists(d) {
			return d
		}
	}
	return ""
}
