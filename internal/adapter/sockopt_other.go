//go:build !unix

package adapter

import "syscall"

// broadcastControl is a no-op where the unix socket options are unavailable.
func broadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
