//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package main

import (
	"io"
	"testing"
	"time"

	"github.com/abakum/serialport"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReceiveCopiesUntilClose(t *testing.T) {
	controller, follower, err := serialport.Pair()
	require.NoError(t, err)
	defer controller.Close()
	defer follower.Close()
	require.NoError(t, follower.SetReadTimeout(10*time.Millisecond))

	out, in := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- receive(follower, in, zap.NewNop())
	}()

	_, err = controller.Write([]byte("Test Message"))
	require.NoError(t, err)

	got := make([]byte, 12)
	_, err = io.ReadFull(out, got)
	require.NoError(t, err)
	require.Equal(t, "Test Message", string(got))

	require.NoError(t, follower.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "receive did not return after close")
	}
}
