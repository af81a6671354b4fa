//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package unixutils

import (
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Pipe represents a unix-pipe, used as a wake-up signal for Wait
type Pipe struct {
	opened atomic.Bool
	rd     int
	wr     int
}

// NewPipe creates a new non-blocking, close-on-exec pipe
func NewPipe() (*Pipe, error) {
	fds := []int{0, 0}
	if err := unix.Pipe(fds); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}
	p := &Pipe{
		rd: fds[0],
		wr: fds[1],
	}
	p.opened.Store(true)
	return p, nil
}

// ReadFD returns the file handle for the read side of the pipe.
func (p *Pipe) ReadFD() int {
	if !p.opened.Load() {
		return -1
	}
	return p.rd
}

// Write to the pipe the content of data. Returns the number of bytes written.
func (p *Pipe) Write(data []byte) (int, error) {
	if !p.opened.Load() {
		return 0, fmt.Errorf("pipe not opened")
	}
	return unix.Write(p.wr, data)
}

// Close the pipe
func (p *Pipe) Close() error {
	if !p.opened.CompareAndSwap(true, false) {
		return fmt.Errorf("pipe not opened")
	}
	err1 := unix.Close(p.rd)
	err2 := unix.Close(p.wr)
	if err1 != nil {
		return err1
	}
	return err2
}
