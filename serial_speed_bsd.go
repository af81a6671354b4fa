//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build freebsd || netbsd || openbsd

package serialport

import "golang.org/x/sys/unix"

// On the BSDs the termios speed fields hold the rate itself, so a
// custom rate is programmed the same way as a standard one and it is up
// to the driver to accept it.

func setTermSettingsBaudrate(speed int, settings *unix.Termios) (bool, error) {
	if _, ok := baudrateMap[speed]; !ok {
		return true, nil
	}
	setTermiosSpeed(settings, speed)
	return false, nil
}

func (port *unixPort) setSpecialBaudrate(speed uint32) error {
	if speed < 50 || speed > 1<<31-1 {
		return unix.EINVAL
	}
	settings, err := port.getTermSettings()
	if err != nil {
		return err
	}
	setTermiosSpeed(settings, int(speed))
	return port.setTermSettings(settings)
}

func (port *unixPort) getBaudrate() (int, error) {
	settings, err := port.getTermSettings()
	if err != nil {
		return 0, err
	}
	return termiosSpeed(settings), nil
}
