//
// Copyright 2014-2021 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux && (ppc64 || ppc64le)

package serialport

import "golang.org/x/sys/unix"

// On powerpc the plain termios already carries the speed fields and
// accepts BOTHER, there is no termios2.
const ioctlTcgets2 = unix.TCGETS
const ioctlTcsets2 = unix.TCSETS
