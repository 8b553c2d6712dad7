// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bootloader reads its native configuration format and reports the
// real paths it is currently set up to boot.
type Bootloader interface {
	Name() string
	ReferencedPaths() (paths []string, err error)
}

// UnknownBootloaderError means an explicit --bootloader named a
// variant that does not exist.
type UnknownBootloaderError struct {
	Name string
}

func (e UnknownBootloaderError) Error() string {
	return fmt.Sprintf("unknown bootloader %q", e.Name)
}

// Params locate the bootloader configuration files.
type Params struct {
	// Root is the filesystem root, normally "/".
	Root string
	// BootDir is the boot directory, normally <root>/boot.
	BootDir string
}

// Detect picks the bootloader whose canonical configuration file is
// present, in fixed priority order, falling back to boot directory
// symlinks when none matches. A non-auto name bypasses detection and
// must name an existing variant.
func Detect(p Params, requested string) (bl Bootloader, err error) {
	type variant struct {
		name string
		try  func(Params) (Bootloader, bool)
	}
	variants := []variant{
		{"lilo", detectLilo},
		{"grub2", detectGrub2},
		{"grub", detectGrub},
		{"yaboot", detectYaboot},
	}

	if requested != "" && requested != "auto" {
		for _, v := range variants {
			if v.name != requested {
				continue
			}
			bl, found := v.try(p)
			if !found {
				err = fmt.Errorf(
					"%s configuration not found", v.name)
			}
			return bl, err
		}
		if requested == "symlinks" {
			return symlinks{p: p}, nil
		}
		err = UnknownBootloaderError{Name: requested}
		return
	}

	for _, v := range variants {
		log.Debug().Str("bootloader", v.name).Msg("trying")
		if bl, found := v.try(p); found {
			log.Debug().Str("bootloader", v.name).Msg("detected")
			return bl, nil
		}
	}

	log.Debug().Msg("no bootloader config found, using boot symlinks")
	return symlinks{p: p}, nil
}

// Names lists all supported variants, detection order first.
func Names() []string {
	return []string{"lilo", "grub2", "grub", "yaboot", "symlinks"}
}
