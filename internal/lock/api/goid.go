// Copyright 2025 The syncore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import "runtime"

// getGoroutineID returns the current goroutine ID by parsing the first line
// of runtime.Stack output ("goroutine 123 [running]:").
//
// Thread identity is looked up once per public call, so the ~1µs cost is
// paid next to a lock operation, not per memory access.
func getGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
// It returns 0 if buf does not start with "goroutine <digits>".
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

// liveGoroutineIDs returns the IDs of every goroutine in the process.
//
// The buffer grows until the dump fits: a truncated dump would make live
// goroutines look dead.
func liveGoroutineIDs() []int64 {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return parseAllGIDs(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// parseAllGIDs extracts the ID from every "goroutine N [state]:" header line
// of a runtime.Stack(all=true) dump.
func parseAllGIDs(buf []byte) []int64 {
	var gids []int64
	for len(buf) > 0 {
		end := 0
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		if gid := parseGID(buf[:end]); gid != 0 {
			gids = append(gids, gid)
		}
		if end == len(buf) {
			break
		}
		buf = buf[end+1:]
	}
	return gids
}
