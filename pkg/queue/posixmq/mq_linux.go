//go:build linux

package posixmq

import (
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mqAttr mirrors struct mq_attr, whose fields are C longs.
type mqAttr struct {
	Flags   int
	MaxMsg  int
	MsgSize int
	CurMsgs int
	_       [4]int
}

// The kernel takes queue names without the leading slash.
func kernelName(name string) (*byte, error) {
	return unix.BytePtrFromString(strings.TrimPrefix(name, "/"))
}

func mqOpen(name string, flags int, perm uint32, attr *mqAttr) (int, error) {
	p, err := kernelName(name)
	if err != nil {
		return -1, err
	}
	for {
		fd, _, errno := unix.Syscall6(unix.SYS_MQ_OPEN, uintptr(unsafe.Pointer(p)), uintptr(flags), uintptr(perm), uintptr(unsafe.Pointer(attr)), 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return -1, errno
		}
		return int(fd), nil
	}
}

func mqUnlink(name string) error {
	p, err := kernelName(name)
	if err != nil {
		return err
	}
	if _, _, errno := unix.Syscall(unix.SYS_MQ_UNLINK, uintptr(unsafe.Pointer(p)), 0, 0); errno != 0 {
		return errno
	}
	return nil
}

// mqTimedSend waits until deadline for room. A deadline in the past makes it
// fail at once with ETIMEDOUT on a full queue.
func mqTimedSend(fd int, msg []byte, prio uint, deadline time.Time) error {
	var p unsafe.Pointer
	if len(msg) > 0 {
		p = unsafe.Pointer(&msg[0])
	}
	ts := unix.NsecToTimespec(deadline.UnixNano())
	_, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDSEND, uintptr(fd), uintptr(p), uintptr(len(msg)), uintptr(prio), uintptr(unsafe.Pointer(&ts)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// mqTimedReceive waits until deadline for a message. buf must hold at least
// the queue's message size.
func mqTimedReceive(fd int, buf []byte, deadline time.Time) (int, error) {
	var prio uint
	ts := unix.NsecToTimespec(deadline.UnixNano())
	n, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDRECEIVE, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&prio)), uintptr(unsafe.Pointer(&ts)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

func mqGetAttr(fd int) (mqAttr, error) {
	var attr mqAttr
	if _, _, errno := unix.Syscall(unix.SYS_MQ_GETSETATTR, uintptr(fd), 0, uintptr(unsafe.Pointer(&attr))); errno != 0 {
		return mqAttr{}, errno
	}
	return attr, nil
}
