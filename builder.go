//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

import (
	"fmt"
	"time"
)

// Builder collects a port configuration step by step. Every setter
// returns an updated copy, so a Builder can be used as a template:
//
//	base := serialport.NewBuilder().BaudRate(115200)
//	port, err := base.ReadTimeout(10 * time.Millisecond).Open("/dev/ttyUSB0")
//
// Values are validated as soon as they are set but no device is touched
// before Open; the first invalid value is reported by Err, Mode and Open.
type Builder struct {
	mode Mode
	opts options
	err  error
}

// NewBuilder returns a Builder for a 9600_8N1 port without flow control,
// without timeouts and with exclusive access.
func NewBuilder() Builder {
	return Builder{
		mode: Mode{
			BaudRate: defaultBaudRate,
			DataBits: defaultDataBits,
		},
		opts: defaultOptions(),
	}
}

func (b Builder) fail(err error) Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// BaudRate sets the port speed. Rates outside 1..MaxUint32 are rejected.
func (b Builder) BaudRate(baudRate int) Builder {
	if !validBaudRate(baudRate) {
		return b.fail(&PortError{code: InvalidSpeed, causedBy: fmt.Errorf("baud rate %d out of range", baudRate)})
	}
	b.mode.BaudRate = baudRate
	return b
}

// DataBits sets the character size (5, 6, 7 or 8 bits).
func (b Builder) DataBits(dataBits int) Builder {
	if dataBits < 5 || dataBits > 8 {
		return b.fail(&PortError{code: InvalidDataBits, causedBy: fmt.Errorf("%d data bits", dataBits)})
	}
	b.mode.DataBits = dataBits
	return b
}

// Parity sets the parity mode.
func (b Builder) Parity(parity Parity) Builder {
	if parity < NoParity || parity > SpaceParity {
		return b.fail(&PortError{code: InvalidParity})
	}
	b.mode.Parity = parity
	return b
}

// StopBits sets the number of stop bits.
func (b Builder) StopBits(stopBits StopBits) Builder {
	if stopBits < OneStopBit || stopBits > TwoStopBits {
		return b.fail(&PortError{code: InvalidStopBits})
	}
	b.mode.StopBits = stopBits
	return b
}

// FlowControl sets the flow control mode.
func (b Builder) FlowControl(flowControl FlowControl) Builder {
	if flowControl < NoFlowControl || flowControl > HardwareFlowControl {
		return b.fail(&PortError{code: InvalidFlowControl})
	}
	b.mode.FlowControl = flowControl
	return b
}

// ReadTimeout sets the read timeout, NoTimeout blocks indefinitely.
func (b Builder) ReadTimeout(t time.Duration) Builder {
	if err := checkTimeout(t); err != nil {
		return b.fail(err)
	}
	b.opts.readTimeout = t
	return b
}

// WriteTimeout sets the write timeout, NoTimeout blocks indefinitely.
func (b Builder) WriteTimeout(t time.Duration) Builder {
	if err := checkTimeout(t); err != nil {
		return b.fail(err)
	}
	b.opts.writeTimeout = t
	return b
}

// Exclusive requests exclusive access to the device (TIOCEXCL) on
// platforms supporting it. It is enabled by default.
func (b Builder) Exclusive(exclusive bool) Builder {
	b.opts.exclusive = exclusive
	return b
}

// RestoreOnClose makes Close put back the device settings found at open time.
func (b Builder) RestoreOnClose(restore bool) Builder {
	b.opts.restoreOnClose = restore
	return b
}

// Err returns the first validation error, if any.
func (b Builder) Err() error {
	return b.err
}

// Mode returns the line parameters collected so far.
func (b Builder) Mode() (Mode, error) {
	return b.mode, b.err
}

// Open opens the serial port with the collected configuration.
func (b Builder) Open(portName string) (Port, error) {
	if b.err != nil {
		return nil, b.err
	}
	mode := b.mode
	return nativeOpen(portName, &mode, b.opts)
}

func checkTimeout(t time.Duration) error {
	if t < 0 && t != NoTimeout {
		return &PortError{code: InvalidTimeoutValue, causedBy: fmt.Errorf("negative timeout %v", t)}
	}
	return nil
}
