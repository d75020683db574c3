// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changelog

import (
	godiff "github.com/sourcegraph/go-diff/diff"
)

// diffStats summarizes an externally supplied unified diff.
type diffStats struct {
	Files   int
	Added   int
	Deleted int
}

// parseDiffStats counts files and line changes in a unified diff. Changed
// lines count as one insertion and one deletion, matching git's numstat.
func parseDiffStats(unified string) (diffStats, error) {
	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return diffStats{}, err
	}
	var stats diffStats
	for _, fd := range fileDiffs {
		st := fd.Stat()
		stats.Files++
		stats.Added += int(st.Added + st.Changed)
		stats.Deleted += int(st.Deleted + st.Changed)
	}
	return stats, nil
}
