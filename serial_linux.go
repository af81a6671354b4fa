//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

import "golang.org/x/sys/unix"

type tcflag = uint32

var baudrateMap = map[int]tcflag{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

const tcCMSPAR = unix.CMSPAR
const tcIUCLC = unix.IUCLC

const tcCRTSCTS = unix.CRTSCTS

const ioctlTcgetattr = unix.TCGETS
const ioctlTcsetattr = unix.TCSETS

// TIOCINQ is FIONREAD on Linux
const ioctlBytesToRead = unix.TIOCINQ

const tcInputQueue = unix.TCIFLUSH
const tcOutputQueue = unix.TCOFLUSH

// setTermSettingsBaudrate programs speed if it is in the standard table,
// otherwise reports that the custom-rate path is required.
func setTermSettingsBaudrate(speed int, settings *unix.Termios) (bool, error) {
	baudrate, ok := baudrateMap[speed]
	if !ok {
		return true, nil
	}
	settings.Cflag &^= unix.CBAUD | unix.CIBAUD
	settings.Cflag |= baudrate
	settings.Ispeed = uint32(speed)
	settings.Ospeed = uint32(speed)
	return false, nil
}

// setSpecialBaudrate programs an arbitrary speed with the BOTHER flag,
// the kernel derives the divisor from the speed fields.
func (port *unixPort) setSpecialBaudrate(speed uint32) error {
	settings, err := unix.IoctlGetTermios(port.handle, ioctlTcgets2)
	if err != nil {
		return err
	}
	settings.Cflag &^= unix.CBAUD | unix.CIBAUD
	settings.Cflag |= unix.BOTHER
	settings.Ispeed = speed
	settings.Ospeed = speed
	return unix.IoctlSetTermios(port.handle, ioctlTcsets2, settings)
}

// getBaudrate reads the output speed as computed by the kernel, it is
// valid for both the standard and the BOTHER encodings.
func (port *unixPort) getBaudrate() (int, error) {
	settings, err := unix.IoctlGetTermios(port.handle, ioctlTcgets2)
	if err != nil {
		return 0, err
	}
	return int(settings.Ospeed), nil
}

func flushQueue(fd int, queue int) error {
	return unix.IoctlSetInt(fd, unix.TCFLSH, queue)
}

// drain is tcdrain(3): TCSBRK with a non-zero argument waits for the
// output to be transmitted without sending a break.
func drain(fd int) error {
	return unix.IoctlSetInt(fd, unix.TCSBRK, 1)
}
