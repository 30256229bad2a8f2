// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package diskspace probes free disk space for the raw AEDAT logger's
// capacity precomputation: capacity is capped at (free_bytes - 100MB) / 8
// events.
//
// This is a small enough concern, with a concrete statfs-backed answer,
// that the raw logger is given a direct implementation here rather than a
// bare interface.
package diskspace

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SafetyMarginBytes is the reserved headroom subtracted before computing
// capacity.
const SafetyMarginBytes = 100 * 1024 * 1024

// BytesPerEvent is the on-disk size of one (address, timestamp) AEDAT
// record, shared by both v2 and v3 (one uint32 + one int32).
const BytesPerEvent = 8

// FreeBytes returns the number of bytes free on the filesystem containing
// path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, errors.Wrapf(err, "diskspace: statfs %q", path)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// EventCapacity returns the maximum number of AEDAT events that may be
// written to a file at path before the safety margin is reached. It
// returns 0 if free space is already below the safety margin.
func EventCapacity(path string) (int64, error) {
	free, err := FreeBytes(path)
	if err != nil {
		return 0, err
	}
	if free <= SafetyMarginBytes {
		return 0, nil
	}
	return int64(free-SafetyMarginBytes) / BytesPerEvent, nil
}
