//
// Copyright 2014-2017 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

import "golang.org/x/sys/unix"

type tcflag = uint32

var baudrateMap = map[int]uint32{
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
	460800: unix.B460800,
	921600: unix.B921600,
}

const tcCMSPAR = 0 // not supported
const tcIUCLC = 0  // not supported

const tcCRTSCTS = unix.CRTSCTS

func setTermiosSpeed(settings *unix.Termios, speed int) {
	settings.Ispeed = uint32(speed)
	settings.Ospeed = uint32(speed)
}

func termiosSpeed(settings *unix.Termios) int {
	return int(settings.Ospeed)
}
