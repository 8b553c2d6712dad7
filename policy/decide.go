// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package policy

import (
	"github.com/rs/zerolog/log"

	"code.dumpstack.io/tools/kclean/kernel"
)

// Verdict is the per-kernel outcome of the removal policy.
type Verdict int

const (
	KeepRunning Verdict = iota
	KeepBootloader
	KeepWithinN
	Remove
)

func (v Verdict) String() string {
	return [...]string{
		"currently running",
		"referenced by bootloader",
		"within keep limit",
		"remove",
	}[v]
}

// Keep reports whether the verdict protects the kernel.
func (v Verdict) Keep() bool { return v != Remove }

// Options is the resolved option set the decision engine runs on.
type Options struct {
	// Keep is how many newest kernels survive rule 4.
	Keep int
	// All removes everything rules 1 and 2 do not protect.
	All bool
	// Destructive disables the bootloader-reference protection.
	Destructive bool
	// SortOrder is "version" or "mtime".
	SortOrder string
}

// Decide applies the removal policy to every kernel. It is a pure
// function of its inputs: running is the probed running-kernel
// version, referenced the canonical paths the bootloader boots, m the
// resolved reference map. First matching rule wins:
//
//  1. kernel is the running one            -> KeepRunning
//  2. a file is referenced by the bootloader
//     (unless destructive)                 -> KeepBootloader
//  3. --all                                -> Remove
//  4. kernel is among the Keep newest      -> KeepWithinN
//     anything below the limit             -> Remove
//
// The running kernel is never removed, under any option combination.
func Decide(ks []kernel.Kernel, running string, referenced []string,
	m RefMap, opts Options) map[kernel.ID]Verdict {

	refSet := make(map[string]bool, len(referenced))
	for _, p := range referenced {
		refSet[p] = true
	}

	verdicts := make(map[kernel.ID]Verdict, len(ks))
	var undecided []kernel.Kernel

	for _, k := range ks {
		if running != "" && k.EffectiveVersion() == running {
			verdicts[k.ID] = KeepRunning
			log.Debug().Str("kernel", k.Version).
				Msg("preserving currently running kernel")
			continue
		}

		if !opts.Destructive && bootReferenced(k, m, refSet) {
			verdicts[k.ID] = KeepBootloader
			continue
		}

		if opts.All {
			verdicts[k.ID] = Remove
			continue
		}

		undecided = append(undecided, k)
	}

	if !opts.All {
		kernel.Sort(undecided, opts.SortOrder)
		for i, k := range undecided {
			if i < opts.Keep {
				verdicts[k.ID] = KeepWithinN
			} else {
				verdicts[k.ID] = Remove
			}
		}
	}

	return verdicts
}

func bootReferenced(k kernel.Kernel, m RefMap, refSet map[string]bool) bool {
	for _, p := range m.PathsOf(k.ID) {
		if refSet[p] {
			return true
		}
	}
	return false
}
