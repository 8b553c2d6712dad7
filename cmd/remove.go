// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/logrusorgru/aurora.v2"

	"code.dumpstack.io/tools/kclean/bootloader"
	"code.dumpstack.io/tools/kclean/kernel"
	"code.dumpstack.io/tools/kclean/layout"
	"code.dumpstack.io/tools/kclean/policy"
)

type RemoveCmd struct {
	Keep        int  `short:"n" default:"0" help:"leave only the newest N kernels"`
	All         bool `short:"a" help:"remove all kernels unless used by bootloader"`
	Destructive bool `short:"d" help:"remove kernels even when referenced by bootloader"`
	Pretend     bool `short:"p" help:"print what would be removed and exit"`
	Ask         bool `short:"A" help:"ask before removing each kernel"`
}

func (cmd *RemoveCmd) Run(g *Globals) (err error) {
	s, err := g.settings()
	if err != nil {
		return
	}

	opts := policy.Options{
		Keep:        cmd.Keep,
		All:         cmd.All,
		Destructive: cmd.Destructive,
		SortOrder:   s.sortOrder,
	}
	if !cmd.All && cmd.Keep == 0 && s.rc.Keep > 0 {
		opts.Keep = s.rc.Keep
	}
	opts.All = opts.All || (!cmd.All && s.rc.All)
	opts.Destructive = opts.Destructive || s.rc.Destructive
	pretend := cmd.Pretend || s.rc.Pretend

	lay, err := layout.Detect(s.layout, s.layoutName)
	if err != nil {
		return
	}
	log.Debug().Str("layout", lay.Name()).Msg("scanning")

	kernels, orphans, err := lay.Discover()
	if err != nil {
		return
	}
	kernels = kernel.AssignIDs(kernels)

	bl, err := bootloader.Detect(s.boot, s.bootName)
	if err != nil {
		return
	}
	referenced, err := bl.ReferencedPaths()
	if err != nil {
		return
	}
	log.Debug().Str("bootloader", bl.Name()).
		Strs("referenced", referenced).Msg("bootloader references")

	running := kernel.CurrentVersion()

	refmap := policy.Resolve(kernels, orphans)
	verdicts := policy.Decide(kernels, running, referenced, refmap, opts)

	if cmd.Ask && !pretend {
		askEach(kernels, verdicts)
	}

	report := policy.Apply(kernels, verdicts, refmap, pretend)
	printReport(kernels, verdicts, report)

	if len(report.Errors) != 0 {
		err = fmt.Errorf("%d files could not be removed",
			len(report.Errors))
	}
	return
}

func askEach(kernels []kernel.Kernel, verdicts map[kernel.ID]policy.Verdict) {
	in := bufio.NewReader(os.Stdin)
	for _, k := range kernels {
		if verdicts[k.ID] != policy.Remove {
			continue
		}
		fmt.Printf("Remove %s? [y/N] ", k.Version)
		answer, err := in.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			verdicts[k.ID] = policy.KeepWithinN
		}
	}
}

func printReport(kernels []kernel.Kernel,
	verdicts map[kernel.ID]policy.Verdict, report policy.Report) {

	if len(report.Kernels) == 0 && len(report.Orphans) == 0 {
		fmt.Println("No outdated kernels found.")
		return
	}

	if report.DryRun {
		fmt.Println("These are the kernels which would be removed:")
	}

	for _, k := range kernels {
		v := verdicts[k.ID]
		if v == policy.Remove {
			continue
		}
		fmt.Println(aurora.Sprintf("* keeping kernel %s (%s)",
			aurora.Green(k.Version), v))
	}

	for _, kr := range report.Kernels {
		fmt.Println(aurora.Sprintf("* removing kernel %s",
			aurora.Red(kr.Kernel.Version)))
		printFiles(kr.Files)
	}

	if len(report.Orphans) != 0 {
		fmt.Println("* removing orphan files")
		printFiles(report.Orphans)
	}

	for _, derr := range report.Errors {
		fmt.Println(aurora.Sprintf("! %s", aurora.Red(derr.Error())))
	}

	if !report.DryRun {
		fmt.Printf("Removed %d kernels\n", len(report.Kernels))
	}
}

func printFiles(files []policy.FileReport) {
	for _, f := range files {
		if f.Deleted {
			fmt.Println(aurora.Sprintf("  [%s] %s",
				aurora.Red("-"), f.Path))
		} else {
			// shared with a kernel that stays
			fmt.Println(aurora.Sprintf("  [%s] %s",
				aurora.Green("+"), f.Path))
		}
	}
}
