// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import "regexp"

var liloRe = regexp.MustCompile(`(?mi)^\s*image\s*=\s*(?P<path>.+?)\s*$`)

func detectLilo(p Params) (Bootloader, bool) {
	c, found := readConf(confFile{
		name: "lilo",
		re:   liloRe,
		p:    p,
	}, "/etc/lilo.conf")
	if !found {
		return nil, false
	}
	return c, true
}
