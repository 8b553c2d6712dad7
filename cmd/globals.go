package cmd

import (
	"fmt"
	"strings"

	"code.dumpstack.io/tools/kclean/bootloader"
	"code.dumpstack.io/tools/kclean/config"
	"code.dumpstack.io/tools/kclean/kernel"
	"code.dumpstack.io/tools/kclean/layout"
)

type Globals struct {
	Config string `help:"path to kclean configuration" default:"~/.kclean/kclean.toml"`

	Root    string `help:"alternate filesystem root" default:"/"`
	BootDir string `help:"boot directory (default: <root>/boot)"`

	Layout     string `help:"boot directory layout (auto, std, blspec)" default:"auto"`
	Bootloader string `help:"bootloader (auto, lilo, grub2, grub, yaboot, symlinks)" default:"auto"`

	Sort    string `help:"kernel sort order (version, mtime)" default:"version"`
	Exclude string `help:"comma-separated kernel parts to exclude from removal"`
}

// settings is the option set resolved from the rc file and the
// command line, flags winning over the rc file.
type settings struct {
	layout     layout.Params
	boot       bootloader.Params
	layoutName string
	bootName   string
	sortOrder  string

	rc config.Kclean
}

func (g *Globals) settings() (s settings, err error) {
	s.rc, err = config.Read(g.Config)
	if err != nil {
		err = fmt.Errorf("cannot read %s: %w", g.Config, err)
		return
	}

	root := override(g.Root, "/", s.rc.Root)
	bootDir := override(g.BootDir, "", s.rc.BootDir)
	s.layoutName = override(g.Layout, "auto", s.rc.Layout)
	s.bootName = override(g.Bootloader, "auto", s.rc.Bootloader)
	s.sortOrder = override(g.Sort, kernel.SortVersion, s.rc.Sort)

	switch s.sortOrder {
	case kernel.SortVersion, kernel.SortMTime:
	default:
		err = fmt.Errorf("unknown sort order %q", s.sortOrder)
		return
	}

	exclude, err := parseExclusions(g.Exclude, s.rc.Exclude)
	if err != nil {
		return
	}

	s.layout = layout.Params{
		Root:    root,
		BootDir: bootDir,
		Exclude: exclude,
	}
	s.boot = bootloader.Params{
		Root:    root,
		BootDir: bootDir,
	}
	return
}

// override prefers an explicitly set flag, then the rc file value,
// then the flag default.
func override(flag, def, rc string) string {
	if flag != def && flag != "" {
		return flag
	}
	if rc != "" {
		return rc
	}
	return def
}

func parseExclusions(flag string, rc []kernel.FileType) (
	exclude map[kernel.FileType]bool, err error) {

	parts := append([]kernel.FileType{}, rc...)
	for _, p := range strings.Split(flag, ",") {
		if p == "" {
			continue
		}
		var ft kernel.FileType
		ft, err = kernel.ParseFileType(p)
		if err != nil {
			return
		}
		parts = append(parts, ft)
	}

	exclude = make(map[kernel.FileType]bool)
	for _, ft := range parts {
		switch ft {
		case kernel.Image, kernel.EmptyDir:
			err = fmt.Errorf("cannot exclude %q", ft)
			return
		}
		exclude[ft] = true
	}
	return
}
