//go:build linux

package wakeup

import "golang.org/x/sys/unix"

func currentOSThread() int {
	return unix.Gettid()
}
