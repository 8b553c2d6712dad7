// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package bootloader

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/fs"
)

// confFile is the shared machinery of the config-parsing variants:
// one configuration file, one kernel-path regexp per boot stanza.
type confFile struct {
	name string
	// path of the config file actually found
	path    string
	content string
	re      *regexp.Regexp
	p       Params

	// paths outside the boot directory get it prepended (grub
	// counts paths from the /boot filesystem root)
	relativeToBoot bool
	// header marking an autogenerated config; such configs are
	// parsed as empty
	autogenHeader string
}

// readConf opens the first existing candidate config file. Candidate
// paths are as seen on the booted system; an alternate root is applied
// here.
func readConf(c confFile, candidates ...string) (confFile, bool) {
	for _, p := range candidates {
		if p == "" {
			continue
		}
		rooted := fs.Rooted(c.p.root(), p)
		buf, err := os.ReadFile(rooted)
		if err != nil {
			continue
		}
		log.Debug().Str("config", rooted).Msgf("%s found", c.name)
		c.path = rooted
		c.content = string(buf)
		return c, true
	}
	return c, false
}

func (c confFile) Name() string { return c.name }

func (c confFile) ReferencedPaths() (paths []string, err error) {
	if c.autogenHeader != "" &&
		strings.HasPrefix(c.content, c.autogenHeader) {
		log.Debug().Str("config", c.path).
			Msg("config is autogenerated, ignoring")
		return
	}

	pathIdx := c.re.SubexpIndex("path")
	for _, m := range c.re.FindAllStringSubmatch(c.content, -1) {
		p := strings.TrimSpace(m[pathIdx])
		if p == "" {
			log.Warn().Str("config", c.path).
				Str("entry", strings.TrimSpace(m[0])).
				Msg("skipping malformed boot entry")
			continue
		}
		log.Debug().Str("path", p).
			Msgf("%s references kernel", c.name)

		if c.relativeToBoot && !underBoot(p) {
			rel, rerr := filepath.Rel("/", p)
			if rerr != nil {
				log.Warn().Str("config", c.path).
					Str("path", p).
					Msg("skipping malformed boot entry")
				continue
			}
			p = filepath.Join("/boot", rel)
			log.Debug().Str("path", p).Msg("prepended /boot")
		}

		paths = append(paths,
			fs.Realpath(fs.Rooted(c.p.root(), p)))
	}
	return
}

func underBoot(path string) bool {
	rel, err := filepath.Rel("/boot", path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

func (p Params) root() string {
	if p.Root == "" {
		return "/"
	}
	return p.Root
}

func (p Params) bootDir() string {
	if p.BootDir != "" {
		return p.BootDir
	}
	return filepath.Join(p.root(), "boot")
}
