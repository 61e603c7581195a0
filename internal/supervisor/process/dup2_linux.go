//go:build linux

package process

import "golang.org/x/sys/unix"

func dup2(oldfd uintptr, newfd int) error {
	return unix.Dup3(int(oldfd), newfd, 0)
}
