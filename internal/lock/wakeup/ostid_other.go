//go:build !linux

package wakeup

func currentOSThread() int {
	return 0
}
