// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

//go:build linux
// +build linux

package kernel

import (
	"github.com/zcalusic/sysinfo"
)

// CurrentVersion returns the release string of the currently running
// kernel. Captured once at pipeline start and passed by value, so the
// decision engine stays a pure function of its inputs.
func CurrentVersion() string {
	var si sysinfo.SysInfo
	si.GetSysInfo()
	return si.Kernel.Release
}
