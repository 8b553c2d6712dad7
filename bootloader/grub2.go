// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import "regexp"

var grub2Re = regexp.MustCompile(
	`(?m)^\s*linux\s*(\([^)]+\))?(?P<path>\S+)`)

const grub2AutogenHeader = `#
# DO NOT EDIT THIS FILE
#
# It is automatically generated by grub2-mkconfig`

func detectGrub2(p Params) (Bootloader, bool) {
	c, found := readConf(confFile{
		name:           "grub2",
		re:             grub2Re,
		p:              p,
		relativeToBoot: true,
		autogenHeader:  grub2AutogenHeader,
	},
		"/boot/grub/grub.cfg",
		"/boot/grub2/grub.cfg",
	)
	if !found {
		return nil, false
	}
	return c, true
}
