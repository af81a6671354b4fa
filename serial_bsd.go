//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build darwin || freebsd || netbsd || openbsd

package serialport

import "golang.org/x/sys/unix"

const ioctlTcgetattr = unix.TIOCGETA
const ioctlTcsetattr = unix.TIOCSETA

// FIONREAD, _IOR('f', 127, int)
const ioctlBytesToRead = 0x4004667f

// FREAD and FWRITE from sys/fcntl.h, the TIOCFLUSH argument
const tcInputQueue = 0x0001
const tcOutputQueue = 0x0002

func flushQueue(fd int, queue int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCFLUSH, queue)
}

func drain(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCDRAIN, 0)
}
