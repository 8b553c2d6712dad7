// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package kernel

// CurrentVersion is only meaningful on Linux.
func CurrentVersion() string {
	return ""
}
