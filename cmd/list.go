// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package cmd

import (
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/kernel"
	"code.dumpstack.io/tools/kclean/layout"
)

type ListCmd struct{}

func (cmd *ListCmd) Run(g *Globals) (err error) {
	s, err := g.settings()
	if err != nil {
		return
	}

	lay, err := layout.Detect(s.layout, s.layoutName)
	if err != nil {
		return
	}

	kernels, orphans, err := lay.Discover()
	if err != nil {
		return
	}
	kernels = kernel.AssignIDs(kernels)
	kernel.Sort(kernels, s.sortOrder)

	log.Trace().Msgf("%v", spew.Sdump(kernels))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"version", "real version", "part", "path"})
	table.SetAutoMergeCells(true)
	table.SetRowLine(false)

	for _, k := range kernels {
		for _, f := range k.Files {
			table.Append([]string{
				k.Version,
				k.EffectiveVersion(),
				f.Type.String(),
				f.Path,
			})
		}
	}
	for _, f := range orphans {
		table.Append([]string{"(orphan)", "", f.Type.String(), f.Path})
	}
	table.Render()

	return
}
