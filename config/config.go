// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package config

import (
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/naoina/toml"

	"code.dumpstack.io/tools/kclean/kernel"
)

// Kclean is the rc file (~/.kclean/kclean.toml). Every field mirrors a
// command-line flag and provides its default; explicit flags win.
type Kclean struct {
	Keep        int
	All         bool
	Destructive bool
	Pretend     bool

	Root       string
	BootDir    string
	Layout     string
	Bootloader string
	Sort       string
	Exclude    []kernel.FileType
}

// Read loads the rc file. A missing file is not an error: the zero
// config is returned.
func Read(path string) (rc Kclean, err error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return
	}

	buf, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}

	err = toml.Unmarshal(buf, &rc)
	return
}
