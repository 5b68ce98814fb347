// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import "os"

// ShouldTransfer reports whether the file at path needs to be downloaded.
// Any existing entry counts as present, complete or not; only overwrite
// forces a new transfer. Stat errors other than "not exists" are treated as
// absent.
//
// The check and the transfer that follows are not atomic: a file created by
// someone else in between is overwritten.
func ShouldTransfer(path string, overwrite bool) bool {
	if overwrite {
		return true
	}
	_, err := os.Lstat(path)
	return err != nil
}
