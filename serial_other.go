//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package serialport

import (
	"fmt"
	"runtime"
)

func nativeOpen(portName string, mode *Mode, opts options) (Port, error) {
	return nil, &PortError{code: FunctionNotImplemented, causedBy: fmt.Errorf("serial ports are not supported on %s", runtime.GOOS)}
}

func nativePair() (Port, Port, error) {
	return nil, nil, &PortError{code: FunctionNotImplemented, causedBy: fmt.Errorf("pseudo-terminals are not supported on %s", runtime.GOOS)}
}
