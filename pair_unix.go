//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package serialport

import (
	"errors"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func nativePair() (Port, Port, error) {
	ptm, pts, err := pty.Open()
	if err != nil {
		var errno unix.Errno
		if errors.As(err, &errno) {
			return nil, nil, resourceError(errno)
		}
		return nil, nil, &PortError{code: OsError, causedBy: err}
	}
	// The ports own duplicates of the descriptors, the files go away here
	defer ptm.Close()
	defer pts.Close()

	controllerHandle, err := dupHandle(ptm)
	if err != nil {
		return nil, nil, resourceError(err)
	}
	followerHandle, err := dupHandle(pts)
	if err != nil {
		unix.Close(controllerHandle)
		return nil, nil, resourceError(err)
	}

	pairOptions := options{
		readTimeout:  NoTimeout,
		writeTimeout: NoTimeout,
	}
	follower, err := newUnixPort(followerHandle, pts.Name(), &Mode{BaudRate: defaultBaudRate, DataBits: defaultDataBits}, pairOptions)
	if err != nil {
		unix.Close(controllerHandle)
		return nil, nil, err
	}
	// Terminal ioctls on the controller side act on the follower terminal
	// on some platforms, so its settings are left alone.
	controller, err := newUnixPort(controllerHandle, ptm.Name(), nil, pairOptions)
	if err != nil {
		follower.Close()
		return nil, nil, err
	}
	return controller, follower, nil
}

// dupHandle returns a close-on-exec duplicate of the descriptor of f.
func dupHandle(f *os.File) (int, error) {
	conn, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	handle := -1
	var dupErr error
	err = conn.Control(func(fd uintptr) {
		handle, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	})
	if err != nil {
		return -1, err
	}
	return handle, dupErr
}
