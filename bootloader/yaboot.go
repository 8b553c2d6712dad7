// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

func detectYaboot(p Params) (Bootloader, bool) {
	c, found := readConf(confFile{
		name: "yaboot",
		re:   liloRe,
		p:    p,
	}, "/etc/yaboot.conf")
	if !found {
		return nil, false
	}
	return c, true
}
