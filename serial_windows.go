//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

/*

// MSDN article on Serial Communications:
// http://msdn.microsoft.com/en-us/library/ff802693.aspx

// Arduino Playground article on serial communication with Windows API:
// http://playground.arduino.cc/Interfacing/CPPWindows

*/

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/windows"
)

type windowsPort struct {
	handle windows.Handle
	name   string

	mu     sync.Mutex
	opened atomic.Bool

	// last applied line settings, the zero Mode forces the next SetMode
	mode         Mode
	readTimeout  time.Duration
	writeTimeout time.Duration

	restore bool
	saved   *dcb
}

// Rates accepted by every Windows serial driver (CBR_xxx).
var standardBaudRates = map[int]bool{
	110: true, 300: true, 600: true, 1200: true, 2400: true, 4800: true,
	9600: true, 14400: true, 19200: true, 38400: true, 57600: true,
	115200: true, 128000: true, 256000: true,
}

var parityMap = map[Parity]byte{
	NoParity:    0,
	OddParity:   1,
	EvenParity:  2,
	MarkParity:  3,
	SpaceParity: 4,
}

var stopBitsMap = map[StopBits]byte{
	OneStopBit:  0,
	TwoStopBits: 2,
}

const maxDword = 0xFFFFFFFF

func nativeOpen(portName string, mode *Mode, opts options) (Port, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	path, err := windows.UTF16PtrFromString(devicePath(portName))
	if err != nil {
		return nil, &PortError{code: InvalidSerialPort, causedBy: err}
	}
	handle, err := windows.CreateFile(
		path,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil,
		windows.OPEN_EXISTING,
		0,
		0)
	if err != nil {
		return nil, openError(err)
	}

	port := &windowsPort{
		handle:       handle,
		name:         portName,
		readTimeout:  opts.readTimeout,
		writeTimeout: opts.writeTimeout,
		restore:      opts.restoreOnClose,
	}

	params := &dcb{}
	if err := getCommState(handle, params); err != nil {
		windows.CloseHandle(handle)
		return nil, &PortError{code: InvalidSerialPort, causedBy: err}
	}
	saved := *params
	port.saved = &saved

	params.Flags &= dcbRTSControlDisableMask
	params.Flags |= dcbRTSControlEnable
	params.Flags &= dcbDTRControlDisableMask
	params.Flags |= dcbDTRControlEnable
	params.Flags &^= dcbOutXCTSFlow
	params.Flags &^= dcbOutXDSRFlow
	params.Flags &^= dcbDSRSensitivity
	params.Flags |= dcbTXContinueOnXOFF
	params.Flags &^= dcbInX | dcbOutX
	params.Flags &^= dcbErrorChar
	params.Flags &^= dcbNull
	params.Flags &^= dcbAbortOnError
	params.XonLim = 2048
	params.XoffLim = 512
	params.XonChar = 17  // DC1
	params.XoffChar = 19 // DC3
	if err := setCommState(handle, params); err != nil {
		windows.CloseHandle(handle)
		return nil, &PortError{code: InvalidSerialPort, causedBy: err}
	}

	m := mode.withDefaults()
	if err := port.applyMode(&m); err != nil {
		windows.CloseHandle(handle)
		return nil, err
	}
	if err := port.applyTimeouts(); err != nil {
		windows.CloseHandle(handle)
		return nil, err
	}

	port.opened.Store(true)
	return port, nil
}

func nativePair() (Port, Port, error) {
	return nil, nil, &PortError{code: FunctionNotImplemented}
}

// devicePath adds the device namespace prefix needed by COM10 and above.
func devicePath(portName string) string {
	if strings.HasPrefix(portName, `\\.\`) {
		return portName
	}
	return `\\.\` + portName
}

func openError(err error) error {
	switch err {
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_SHARING_VIOLATION:
		return &PortError{code: PortBusy, causedBy: err}
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return &PortError{code: PortNotFound, causedBy: err}
	case windows.ERROR_TOO_MANY_OPEN_FILES, windows.ERROR_NOT_ENOUGH_MEMORY:
		return &PortError{code: ResourceExhausted, causedBy: err}
	}
	return &PortError{code: OsError, causedBy: err}
}

func (port *windowsPort) Close() error {
	if !port.opened.CompareAndSwap(true, false) {
		return nil
	}
	port.mu.Lock()
	defer port.mu.Unlock()

	if port.restore && port.saved != nil {
		setCommState(port.handle, port.saved)
	}
	if err := windows.CloseHandle(port.handle); err != nil {
		return &PortError{code: OsError, causedBy: err}
	}
	return nil
}

func (port *windowsPort) check() error {
	if !port.opened.Load() {
		return &PortError{code: PortClosed}
	}
	return nil
}

func (port *windowsPort) Read(p []byte) (int, error) {
	if err := port.check(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	var read uint32
	params := &dcb{}
	for {
		if err := windows.ReadFile(port.handle, p, &read, nil); err != nil {
			if port.check() != nil {
				return 0, &PortError{code: PortClosed}
			}
			return int(read), &PortError{code: ReadFailed, causedBy: err}
		}
		if read > 0 {
			return int(read), nil
		}
		if port.readTimeout != NoTimeout {
			return 0, &PortError{code: Timeout}
		}

		// At the moment it seems that the only reliable way to check if
		// a serial port is alive in Windows is to check if the SetCommState
		// function fails.
		getCommState(port.handle, params)
		if err := setCommState(port.handle, params); err != nil {
			port.Close()
			return 0, &PortError{code: PortClosed, causedBy: err}
		}
	}
}

func (port *windowsPort) Write(p []byte) (int, error) {
	if err := port.check(); err != nil {
		return 0, err
	}
	var written uint32
	if err := windows.WriteFile(port.handle, p, &written, nil); err != nil {
		if err == windows.ERROR_SEM_TIMEOUT {
			return int(written), &PortError{code: Timeout, causedBy: err}
		}
		return int(written), &PortError{code: WriteFailed, causedBy: err}
	}
	if int(written) < len(p) {
		return int(written), &PortError{code: Timeout}
	}
	return int(written), nil
}

// applyMode programs the line settings with a single SetCommState call.
// A frame format the driver does not keep is rolled back. Rates outside
// the CBR table are attempted afterwards, so a driver refusing them
// leaves the other fields applied.
func (port *windowsPort) applyMode(mode *Mode) error {
	params := &dcb{}
	if err := getCommState(port.handle, params); err != nil {
		return &PortError{code: InvalidSerialPort, causedBy: err}
	}
	previous := *params
	standard := standardBaudRates[mode.BaudRate]
	if standard {
		params.BaudRate = uint32(mode.BaudRate)
	}
	if err := setDCBDataBits(mode.DataBits, params); err != nil {
		return err
	}
	if err := setDCBParity(mode.Parity, params); err != nil {
		return err
	}
	if err := setDCBStopBits(mode.StopBits, params); err != nil {
		return err
	}
	if err := setDCBFlowControl(mode.FlowControl, params); err != nil {
		return err
	}

	port.mode = Mode{}
	if err := port.commitDCB(&previous, params, ConfigurationRejected); err != nil {
		return err
	}
	if !standard {
		params.BaudRate = uint32(mode.BaudRate)
		if err := setCommState(port.handle, params); err != nil {
			return &PortError{code: UnsupportedSpeed, causedBy: err}
		}
	}
	port.mode = *mode
	return nil
}

func (port *windowsPort) SetMode(mode *Mode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	m := mode.withDefaults()
	if err := port.check(); err != nil {
		return err
	}
	port.mu.Lock()
	defer port.mu.Unlock()

	if m == port.mode {
		return nil
	}
	return port.applyMode(&m)
}

// updateDCB reads the device control block, lets edit change it and
// writes it back. The cached mode is refreshed through update, or dropped
// when the driver refuses the change.
func (port *windowsPort) updateDCB(code PortErrorCode, edit func(*dcb) error, update func(*Mode)) error {
	if err := port.check(); err != nil {
		return err
	}
	port.mu.Lock()
	defer port.mu.Unlock()

	params := &dcb{}
	if err := getCommState(port.handle, params); err != nil {
		return &PortError{code: code, causedBy: err}
	}
	previous := *params
	if err := edit(params); err != nil {
		return err
	}
	if err := port.commitDCB(&previous, params, code); err != nil {
		port.mode = Mode{}
		return err
	}
	if port.mode != (Mode{}) {
		update(&port.mode)
	}
	return nil
}

// commitDCB writes params and reads the control block back. When the
// driver did not keep the frame format the previous block is written again.
func (port *windowsPort) commitDCB(previous, params *dcb, code PortErrorCode) error {
	if err := setCommState(port.handle, params); err != nil {
		return &PortError{code: code, causedBy: err}
	}
	applied := &dcb{}
	err := getCommState(port.handle, applied)
	if err != nil {
		err = &PortError{code: ConfigurationRejected, causedBy: err}
	} else {
		err = checkDCB(params, applied)
	}
	if err != nil {
		setCommState(port.handle, previous)
		return err
	}
	return nil
}

func (port *windowsPort) readDCB() (*dcb, error) {
	if err := port.check(); err != nil {
		return nil, err
	}
	params := &dcb{}
	if err := getCommState(port.handle, params); err != nil {
		return nil, &PortError{code: OsError, causedBy: err}
	}
	return params, nil
}

func (port *windowsPort) SetBaudRate(baudRate int) error {
	if !validBaudRate(baudRate) {
		return &PortError{code: InvalidSpeed, causedBy: fmt.Errorf("baud rate %d out of range", baudRate)}
	}
	code := InvalidSpeed
	if !standardBaudRates[baudRate] {
		code = UnsupportedSpeed
	}
	return port.updateDCB(code,
		func(params *dcb) error { params.BaudRate = uint32(baudRate); return nil },
		func(mode *Mode) { mode.BaudRate = baudRate })
}

func (port *windowsPort) BaudRate() (int, error) {
	params, err := port.readDCB()
	if err != nil {
		return 0, err
	}
	return int(params.BaudRate), nil
}

func (port *windowsPort) SetDataBits(dataBits int) error {
	return port.updateDCB(InvalidDataBits,
		func(params *dcb) error { return setDCBDataBits(dataBits, params) },
		func(mode *Mode) { mode.DataBits = dataBits })
}

func (port *windowsPort) DataBits() (int, error) {
	params, err := port.readDCB()
	if err != nil {
		return 0, err
	}
	return int(params.ByteSize), nil
}

func (port *windowsPort) SetParity(parity Parity) error {
	return port.updateDCB(InvalidParity,
		func(params *dcb) error { return setDCBParity(parity, params) },
		func(mode *Mode) { mode.Parity = parity })
}

func (port *windowsPort) Parity() (Parity, error) {
	params, err := port.readDCB()
	if err != nil {
		return NoParity, err
	}
	for parity, value := range parityMap {
		if value == params.Parity {
			return parity, nil
		}
	}
	return NoParity, &PortError{code: InvalidParity}
}

func (port *windowsPort) SetStopBits(stopBits StopBits) error {
	return port.updateDCB(InvalidStopBits,
		func(params *dcb) error { return setDCBStopBits(stopBits, params) },
		func(mode *Mode) { mode.StopBits = stopBits })
}

func (port *windowsPort) StopBits() (StopBits, error) {
	params, err := port.readDCB()
	if err != nil {
		return OneStopBit, err
	}
	for stopBits, value := range stopBitsMap {
		if value == params.StopBits {
			return stopBits, nil
		}
	}
	// 1.5 stop bits
	return OneStopBit, &PortError{code: InvalidStopBits}
}

func (port *windowsPort) SetFlowControl(flowControl FlowControl) error {
	return port.updateDCB(InvalidFlowControl,
		func(params *dcb) error { return setDCBFlowControl(flowControl, params) },
		func(mode *Mode) { mode.FlowControl = flowControl })
}

func (port *windowsPort) FlowControl() (FlowControl, error) {
	params, err := port.readDCB()
	if err != nil {
		return NoFlowControl, err
	}
	switch {
	case params.Flags&dcbOutXCTSFlow != 0:
		return HardwareFlowControl, nil
	case params.Flags&(dcbInX|dcbOutX) != 0:
		return SoftwareFlowControl, nil
	}
	return NoFlowControl, nil
}

func (port *windowsPort) SetReadTimeout(t time.Duration) error {
	if err := checkTimeout(t); err != nil {
		return err
	}
	if err := port.check(); err != nil {
		return err
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	port.readTimeout = t
	return port.applyTimeouts()
}

func (port *windowsPort) ReadTimeout() time.Duration {
	return port.readTimeout
}

func (port *windowsPort) SetWriteTimeout(t time.Duration) error {
	if err := checkTimeout(t); err != nil {
		return err
	}
	if err := port.check(); err != nil {
		return err
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	port.writeTimeout = t
	return port.applyTimeouts()
}

func (port *windowsPort) WriteTimeout() time.Duration {
	return port.writeTimeout
}

func (port *windowsPort) applyTimeouts() error {
	timeouts := commTimeoutsFor(port.readTimeout, port.writeTimeout)
	if err := setCommTimeouts(port.handle, &timeouts); err != nil {
		return &PortError{code: InvalidTimeoutValue, causedBy: err}
	}
	return nil
}

// commTimeoutsFor translates the port timeouts into COMMTIMEOUTS.
//
// A finite read timeout uses the MAXDWORD/MAXDWORD/constant combination:
// ReadFile returns as soon as a byte arrives or after the constant
// expires with no data. NoTimeout uses the longest finite constant and
// Read loops on empty results. A zero read timeout returns immediately
// with whatever is buffered. A zero write constant means "no timeout"
// to Windows, so a zero write timeout is rounded up to one millisecond.
func commTimeoutsFor(read, write time.Duration) commTimeouts {
	var t commTimeouts
	switch {
	case read == NoTimeout:
		t.ReadIntervalTimeout = maxDword
		t.ReadTotalTimeoutMultiplier = maxDword
		t.ReadTotalTimeoutConstant = maxDword - 1
	case read == 0:
		t.ReadIntervalTimeout = maxDword
	default:
		t.ReadIntervalTimeout = maxDword
		t.ReadTotalTimeoutMultiplier = maxDword
		t.ReadTotalTimeoutConstant = milliseconds(read)
	}
	if write != NoTimeout {
		t.WriteTotalTimeoutConstant = milliseconds(write)
	}
	return t
}

// milliseconds rounds d up to the range [1, MAXDWORD-1] milliseconds.
func milliseconds(d time.Duration) uint32 {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	switch {
	case ms < 1:
		return 1
	case ms >= maxDword:
		return maxDword - 1
	}
	return uint32(ms)
}

func (port *windowsPort) ResetInputBuffer() error {
	return port.comm(func(h windows.Handle) error { return purgeComm(h, purgeRxClear|purgeRxAbort) })
}

func (port *windowsPort) ResetOutputBuffer() error {
	return port.comm(func(h windows.Handle) error { return purgeComm(h, purgeTxClear|purgeTxAbort) })
}

func (port *windowsPort) queues() (*comstat, error) {
	var errs uint32
	stat := &comstat{}
	err := port.comm(func(h windows.Handle) error { return clearCommError(h, &errs, stat) })
	return stat, err
}

func (port *windowsPort) BytesToRead() (int, error) {
	stat, err := port.queues()
	if err != nil {
		return 0, err
	}
	return int(stat.inque), nil
}

func (port *windowsPort) BytesToWrite() (int, error) {
	stat, err := port.queues()
	if err != nil {
		return 0, err
	}
	return int(stat.outque), nil
}

func (port *windowsPort) Drain() error {
	return port.comm(windows.FlushFileBuffers)
}

func (port *windowsPort) Break(duration time.Duration) error {
	return port.comm(func(h windows.Handle) error {
		if err := escapeCommFunction(h, commFunctionSetBreak); err != nil {
			return err
		}
		time.Sleep(duration)
		return escapeCommFunction(h, commFunctionClrBreak)
	})
}

func (port *windowsPort) SetDTR(dtr bool) error {
	function := uint32(commFunctionClrDTR)
	if dtr {
		function = commFunctionSetDTR
	}
	return port.comm(func(h windows.Handle) error { return escapeCommFunction(h, function) })
}

func (port *windowsPort) SetRTS(rts bool) error {
	function := uint32(commFunctionClrRTS)
	if rts {
		function = commFunctionSetRTS
	}
	return port.comm(func(h windows.Handle) error { return escapeCommFunction(h, function) })
}

func (port *windowsPort) GetModemStatusBits() (*ModemStatusBits, error) {
	var bits uint32
	if err := port.comm(func(h windows.Handle) error { return getCommModemStatus(h, &bits) }); err != nil {
		return nil, err
	}
	return &ModemStatusBits{
		CTS: (bits & msCTSOn) != 0,
		DCD: (bits & msRLSDOn) != 0,
		DSR: (bits & msDSROn) != 0,
		RI:  (bits & msRingOn) != 0,
	}, nil
}

func (port *windowsPort) Name() string {
	return port.name
}

func (port *windowsPort) Fd() uintptr {
	return uintptr(port.handle)
}

// comm runs f on the open handle and wraps its error as an OsError.
func (port *windowsPort) comm(f func(windows.Handle) error) error {
	if err := port.check(); err != nil {
		return err
	}
	if err := f(port.handle); err != nil {
		return &PortError{code: OsError, causedBy: err}
	}
	return nil
}

// DCB manipulation functions

// dcbFrameFlags are the Flags bits compared after SetCommState.
const dcbFrameFlags = dcbParity | dcbOutXCTSFlow | dcbOutX | dcbInX | ^dcbRTSControlDisableMask

// checkDCB compares the frame format of the control block read back from
// the driver with the requested one.
func checkDCB(want, got *dcb) error {
	if want.ByteSize != got.ByteSize || want.Parity != got.Parity || want.StopBits != got.StopBits ||
		want.Flags&dcbFrameFlags != got.Flags&dcbFrameFlags {
		return &PortError{code: ConfigurationRejected, causedBy: fmt.Errorf(
			"driver kept size %d parity %d stop %d flags %#x, requested size %d parity %d stop %d flags %#x",
			got.ByteSize, got.Parity, got.StopBits, got.Flags&dcbFrameFlags,
			want.ByteSize, want.Parity, want.StopBits, want.Flags&dcbFrameFlags)}
	}
	return nil
}

func setDCBDataBits(bits int, params *dcb) error {
	if bits < 5 || bits > 8 {
		return &PortError{code: InvalidDataBits}
	}
	params.ByteSize = byte(bits)
	return nil
}

func setDCBParity(parity Parity, params *dcb) error {
	value, ok := parityMap[parity]
	if !ok {
		return &PortError{code: InvalidParity}
	}
	params.Parity = value
	if parity == NoParity {
		params.Flags &^= dcbParity
	} else {
		params.Flags |= dcbParity
	}
	return nil
}

func setDCBStopBits(stopBits StopBits, params *dcb) error {
	value, ok := stopBitsMap[stopBits]
	if !ok {
		return &PortError{code: InvalidStopBits}
	}
	params.StopBits = value
	return nil
}

func setDCBFlowControl(flow FlowControl, params *dcb) error {
	params.Flags &^= dcbOutXCTSFlow | dcbInX | dcbOutX
	params.Flags &= dcbRTSControlDisableMask
	switch flow {
	case NoFlowControl:
		params.Flags |= dcbRTSControlEnable
	case SoftwareFlowControl:
		params.Flags |= dcbRTSControlEnable | dcbInX | dcbOutX
	case HardwareFlowControl:
		params.Flags |= dcbRTSControlHandshake | dcbOutXCTSFlow
	default:
		return &PortError{code: InvalidFlowControl}
	}
	return nil
}
