//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type tcflag = uint64

var baudrateMap = map[int]tcflag{
	50:     unix.B50,
	75:     unix.B75,
	110:    unix.B110,
	134:    unix.B134,
	150:    unix.B150,
	200:    unix.B200,
	300:    unix.B300,
	600:    unix.B600,
	1200:   unix.B1200,
	1800:   unix.B1800,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

const tcCMSPAR = 0 // not supported
const tcIUCLC = 0  // not supported

const tcCRTSCTS = unix.CRTSCTS

// _IOW('T', 2, speed_t)
const ioctlIossiospeed = 0x80085402

func setTermSettingsBaudrate(speed int, settings *unix.Termios) (bool, error) {
	baudrate, ok := baudrateMap[speed]
	if !ok {
		return true, nil
	}
	settings.Ispeed = baudrate
	settings.Ospeed = baudrate
	return false, nil
}

// setSpecialBaudrate uses IOSSIOSPEED, the only way to program a rate
// missing from the termios table. Pseudo terminals reject it.
func (port *unixPort) setSpecialBaudrate(speed uint32) error {
	s := uint64(speed)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(port.handle), ioctlIossiospeed, uintptr(unsafe.Pointer(&s)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (port *unixPort) getBaudrate() (int, error) {
	settings, err := port.getTermSettings()
	if err != nil {
		return 0, err
	}
	return int(settings.Ospeed), nil
}
