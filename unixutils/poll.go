//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package unixutils

import (
	"time"

	"golang.org/x/sys/unix"
)

// Readiness conditions accepted by Wait.
const (
	Readable = unix.POLLIN
	Writable = unix.POLLOUT
)

// WaitResult is the outcome of a Wait call.
type WaitResult int

const (
	// Ready the file descriptor is ready (or in error/hangup state, the
	// next I/O call on it will report the condition)
	Ready WaitResult = iota
	// Expired the timeout elapsed before the file descriptor became ready
	Expired
	// Canceled the cancel file descriptor became readable
	Canceled
)

// Wait blocks until fd is ready for the given events, the cancel file
// descriptor becomes readable or the timeout expires, whichever comes
// first. A negative timeout waits forever, a zero timeout only checks the
// current state. Interrupted system calls are restarted with the
// remaining time. Pass a negative cancel to wait on fd alone.
func Wait(fd int, events int16, cancel int, timeout time.Duration) (WaitResult, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	if cancel >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(cancel), Events: unix.POLLIN})
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	remaining := timeout
	for {
		n, err := unix.Poll(fds, pollTimeout(remaining))
		if err == unix.EINTR {
			if timeout > 0 {
				if remaining = time.Until(deadline); remaining < 0 {
					remaining = 0
				}
			}
			continue
		}
		if err != nil {
			return Expired, err
		}
		if n == 0 {
			return Expired, nil
		}
		if len(fds) > 1 && fds[1].Revents != 0 {
			return Canceled, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return Expired, unix.EBADF
		}
		return Ready, nil
	}
}

// pollTimeout converts a duration into poll(2) milliseconds, rounding up
// so that a wait never ends before the requested time.
func pollTimeout(t time.Duration) int {
	if t < 0 {
		return -1
	}
	ms := (t + time.Millisecond - 1) / time.Millisecond
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}
