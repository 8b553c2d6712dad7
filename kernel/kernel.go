// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"strings"
	"time"

	"code.dumpstack.io/tools/kclean/fs"
)

// FileType is the role a file plays in an installed kernel generation.
type FileType int

const (
	Image FileType = iota
	SystemMap
	Config
	Initramfs
	Modules
	Build
	Misc
	EmptyDir
)

var fileTypeNames = [...]string{
	"vmlinuz",
	"systemmap",
	"config",
	"initramfs",
	"modules",
	"build",
	"misc",
	"emptydir",
}

func (ft FileType) String() string {
	return fileTypeNames[ft]
}

// FileTypes lists all roles in declaration order.
func FileTypes() (fts []FileType) {
	for i := range fileTypeNames {
		fts = append(fts, FileType(i))
	}
	return
}

// ParseFileType maps a role name as used in --exclude and the rc file.
func ParseFileType(s string) (ft FileType, err error) {
	for i, name := range fileTypeNames {
		if name == strings.ToLower(s) {
			ft = FileType(i)
			return
		}
	}
	err = fmt.Errorf("unknown kernel part %q", s)
	return
}

func (ft *FileType) UnmarshalTOML(data []byte) (err error) {
	*ft, err = ParseFileType(strings.Trim(string(data), `"`))
	return
}

func (ft FileType) MarshalTOML() (data []byte, err error) {
	data = []byte(`"` + ft.String() + `"`)
	return
}

// File is a single file or directory belonging to a kernel.
type File struct {
	Type FileType
	Path string
	// Dir marks paths removed recursively (module and build trees).
	Dir bool
}

// ID is a stable identifier within one discovery pass.
type ID int

// Kernel represents one installed kernel generation. Instances are
// immutable after discovery.
type Kernel struct {
	ID      ID
	Version string
	Layout  string

	// RealVersion is the version string read from the image itself,
	// empty when the image could not be parsed.
	RealVersion string

	Files []File
}

// EffectiveVersion is the version used for module matching and
// the running-kernel check.
func (k Kernel) EffectiveVersion() string {
	if k.RealVersion != "" {
		return k.RealVersion
	}
	return k.Version
}

// ImagePath returns the path of the kernel image, empty if none.
func (k Kernel) ImagePath() string {
	for _, f := range k.Files {
		if f.Type == Image {
			return f.Path
		}
	}
	return ""
}

// MTime is the modification time of the kernel image, used as the
// sorting tie-breaker.
func (k Kernel) MTime() time.Time {
	if p := k.ImagePath(); p != "" {
		return fs.MTime(p)
	}

	var oldest time.Time
	for _, f := range k.Files {
		mt := fs.MTime(f.Path)
		if oldest.IsZero() || mt.Before(oldest) {
			oldest = mt
		}
	}
	return oldest
}

func (k Kernel) String() string {
	return fmt.Sprintf("%s [%s]", k.Version, k.EffectiveVersion())
}

// AssignIDs numbers kernels with arena-stable identifiers. Called once
// after discovery; the IDs index the reference map owner sets.
func AssignIDs(ks []Kernel) []Kernel {
	for i := range ks {
		ks[i].ID = ID(i)
	}
	return ks
}
