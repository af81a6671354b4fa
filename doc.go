//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

/*
Package serialport is a cross-platform serial port library for the go language.

A port is configured with a Builder and opened on a device path:

	port, err := serialport.NewBuilder().
		BaudRate(115200).
		ReadTimeout(10 * time.Millisecond).
		Open("/dev/ttyUSB0")
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

If not specified the port is opened at 9600_8N1 without flow control and
without timeouts. Invalid values are reported by Open with a
ConfigurationError before any device is touched.

The Open function is also available and takes a Mode:

	mode := &serialport.Mode{
		BaudRate: 57600,
		Parity:   serialport.EvenParity,
		DataBits: 7,
		StopBits: serialport.OneStopBit,
	}
	port, err := serialport.Open("/dev/ttyUSB0", mode)

The configuration can be changed at any time with SetMode or with the
single field setters (SetBaudRate, SetParity, ...). Baud rates missing
from the OS table are programmed through the driver specific custom-rate
path (BOTHER on Linux, IOSSIOSPEED on macOS); a driver refusing them
reports an UnsupportedRate error.

The port implements io.ReadWriteCloser. Read blocks until at least one
byte is available or the read timeout expires; an expired timeout is an
error of kind TimedOut that can be tested with IsTimeout, os.IsTimeout or
errors.Is(err, os.ErrDeadlineExceeded):

	buff := make([]byte, 100)
	for {
		n, err := port.Read(buff)
		if serialport.IsTimeout(err) {
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s", buff[:n])
	}

Closing a port wakes up any Read or Write in progress, which then fails
with a PortClosed error.

On Unix systems Pair returns two connected virtual ports backed by a
pseudo-terminal, useful for testing code that talks to serial devices.

This library doesn't make use of cgo and "C" package, so it's a pure go library
that can be easily cross compiled.
*/
package serialport // import "github.com/abakum/serialport"
