//
// Copyright 2014-2021 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux && !ppc64 && !ppc64le

package serialport

import "golang.org/x/sys/unix"

// termios2 ioctls, they carry explicit input and output speeds
const ioctlTcgets2 = unix.TCGETS2
const ioctlTcsets2 = unix.TCSETS2
