// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import (
	"os"
	"regexp"
)

var grubRe = regexp.MustCompile(
	`(?m)^\s*(kernel|module)\s*(\([^)]+\))?(?P<path>\S+)`)

func detectGrub(p Params) (Bootloader, bool) {
	c, found := readConf(confFile{
		name:           "grub",
		re:             grubRe,
		p:              p,
		relativeToBoot: true,
	},
		os.Getenv("GRUB_CFG"),
		"/boot/grub/menu.lst",
		"/boot/grub/grub.conf",
	)
	if !found {
		return nil, false
	}
	return c, true
}
