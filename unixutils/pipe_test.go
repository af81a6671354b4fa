//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package unixutils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

func TestPipe(t *testing.T) {
	p, err := NewPipe()
	require.NoError(t, err)
	require.GreaterOrEqual(t, p.ReadFD(), 0)

	for _, fd := range []int{p.rd, p.wr} {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		require.NoError(t, err)
		require.NotZero(t, flags&unix.FD_CLOEXEC)
		flags, err = unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
		require.NoError(t, err)
		require.NotZero(t, flags&unix.O_NONBLOCK)
	}

	// Reading an empty pipe does not block
	_, err = unix.Read(p.ReadFD(), make([]byte, 1))
	require.ErrorIs(t, err, unix.EAGAIN)

	n, err := p.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	buf := make([]byte, 8)
	n, err = unix.Read(p.ReadFD(), buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf[:n]))

	require.NoError(t, p.Close())
	require.Equal(t, -1, p.ReadFD())
	require.Error(t, p.Close())
	_, err = p.Write([]byte{1})
	require.Error(t, err)
}

func TestPipeConcurrentClose(t *testing.T) {
	p, err := NewPipe()
	require.NoError(t, err)

	var wg sync.WaitGroup
	var closed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Write([]byte{0})
			if p.Close() == nil {
				closed.Inc()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), closed.Load())
	require.Equal(t, -1, p.ReadFD())
}
