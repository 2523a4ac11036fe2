//go:build !windows

package lock

import "syscall"

// syscallSig0 returns the null signal used to probe process liveness
// without delivering a real signal, per kill(2)'s signal-0 convention.
func syscallSig0() syscall.Signal {
	return syscall.Signal(0)
}
