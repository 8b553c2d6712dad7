// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package kernel

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/Masterminds/semver"
)

// Sort orders supported by --sort.
const (
	SortVersion = "version"
	SortMTime   = "mtime"
)

// Sort orders kernels newest first, according to order. Version order
// compares the effective version (semver when both sides parse as one,
// a version-component comparison otherwise) and breaks ties with the
// image mtime. MTime order uses mtimes alone.
func Sort(ks []Kernel, order string) {
	sort.SliceStable(ks, func(i, j int) bool {
		if order == SortMTime {
			return ks[i].MTime().After(ks[j].MTime())
		}

		c := CompareVersions(ks[i].EffectiveVersion(),
			ks[j].EffectiveVersion())
		if c != 0 {
			return c > 0
		}
		return ks[i].MTime().After(ks[j].MTime())
	})
}

// CompareVersions returns >0 when a is newer than b, <0 when older.
func CompareVersions(a, b string) int {
	va, erra := semver.NewVersion(a)
	vb, errb := semver.NewVersion(b)
	if erra == nil && errb == nil {
		return va.Compare(vb)
	}
	return compareComponents(a, b)
}

var componentRe = regexp.MustCompile(`(\d+|[a-zA-Z]+)`)

// weights for non-numeric components that denote older versions
var componentWeights = map[string]int{
	"old": -3,
	"rc":  -5,
}

type component struct {
	num int
	str string
}

// componentKey mirrors semantic ordering of kernel version strings
// that are not valid semver: numbers compare numerically, "old" and
// "rc" sort below the plain version, ".M-foo" sorts before ".M.0".
func componentKey(v string) (key []component) {
	for _, c := range componentRe.FindAllString(v, -1) {
		if n, err := strconv.Atoi(c); err == nil {
			key = append(key, component{num: n})
			continue
		}
		if w, found := componentWeights[c]; found {
			key = append(key, component{num: w})
			continue
		}
		key = append(key, component{num: -1, str: c})
	}
	// terminator, so a shorter version sorts above its -rc variant
	key = append(key, component{num: -2})
	return
}

func compareComponents(a, b string) int {
	ka, kb := componentKey(a), componentKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if ka[i].num != kb[i].num {
			if ka[i].num < kb[i].num {
				return -1
			}
			return 1
		}
		if ka[i].str != kb[i].str {
			if ka[i].str < kb[i].str {
				return -1
			}
			return 1
		}
	}
	return len(ka) - len(kb)
}
