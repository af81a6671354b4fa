//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package serialport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/abakum/serialport/unixutils"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// specialBaudrate programs a rate missing from the termios speed table.
var specialBaudrate = (*unixPort).setSpecialBaudrate

type unixPort struct {
	handle int
	name   string

	closeLock   sync.RWMutex
	closeSignal *unixutils.Pipe
	opened      atomic.Bool

	// last applied line settings, the zero Mode forces the next SetMode
	mode         Mode
	readTimeout  time.Duration
	writeTimeout time.Duration

	exclusive bool
	restore   bool
	saved     *unix.Termios
}

func nativeOpen(portName string, mode *Mode, opts options) (Port, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	h, err := unix.Open(portName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(err)
	}
	m := mode.withDefaults()
	port, err := newUnixPort(h, portName, &m, opts)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// newUnixPort takes ownership of handle: on failure the handle is closed.
// A nil mode leaves the terminal settings untouched.
func newUnixPort(handle int, name string, mode *Mode, opts options) (*unixPort, error) {
	port := &unixPort{
		handle:       handle,
		name:         name,
		readTimeout:  opts.readTimeout,
		writeTimeout: opts.writeTimeout,
		restore:      opts.restoreOnClose,
	}

	if err := unix.SetNonblock(handle, true); err != nil {
		unix.Close(handle)
		return nil, &PortError{code: InvalidSerialPort, causedBy: err}
	}

	if mode != nil {
		settings, err := port.getTermSettings()
		if err != nil {
			unix.Close(handle)
			return nil, &PortError{code: InvalidSerialPort, causedBy: err}
		}
		saved := *settings
		port.saved = &saved

		setRawMode(settings)
		if err := port.setTermSettings(settings); err != nil {
			unix.Close(handle)
			return nil, &PortError{code: InvalidSerialPort, causedBy: err}
		}
		if err := port.applyMode(mode); err != nil {
			unix.Close(handle)
			return nil, err
		}
	}

	closeSignal, err := unixutils.NewPipe()
	if err != nil {
		unix.Close(handle)
		return nil, resourceError(err)
	}
	port.closeSignal = closeSignal

	if opts.exclusive {
		// Not every driver supports it, a failure is not fatal
		port.exclusive = port.acquireExclusiveAccess() == nil
	}

	port.opened.Store(true)
	return port, nil
}

// lock protects the handle from a concurrent Close. On success the
// caller must release the read lock.
func (port *unixPort) lock() error {
	port.closeLock.RLock()
	if !port.opened.Load() {
		port.closeLock.RUnlock()
		return &PortError{code: PortClosed}
	}
	return nil
}

func (port *unixPort) Close() error {
	if !port.opened.CompareAndSwap(true, false) {
		return nil
	}

	// Wake up pending reads and writes, then wait for them to leave
	port.closeSignal.Write([]byte{0})
	port.closeLock.Lock()
	defer port.closeLock.Unlock()

	if port.restore && port.saved != nil {
		port.setTermSettings(port.saved)
	}
	if port.exclusive {
		port.releaseExclusiveAccess()
	}
	err := unix.Close(port.handle)
	port.closeSignal.Close()
	if err != nil {
		return &PortError{code: OsError, causedBy: err}
	}
	return nil
}

func (port *unixPort) Read(p []byte) (int, error) {
	if err := port.lock(); err != nil {
		return 0, err
	}
	defer port.closeLock.RUnlock()

	if len(p) == 0 {
		return 0, nil
	}

	timeout := port.readTimeout
	deadline := time.Now().Add(timeout)
	for {
		res, err := unixutils.Wait(port.handle, unixutils.Readable, port.closeSignal.ReadFD(), timeout)
		if err != nil {
			return 0, &PortError{code: ReadFailed, causedBy: err}
		}
		switch res {
		case unixutils.Canceled:
			return 0, &PortError{code: PortClosed}
		case unixutils.Expired:
			return 0, &PortError{code: Timeout}
		}

		n, err := unix.Read(port.handle, p)
		if err == unix.EAGAIN || err == unix.EINTR {
			// Spurious wakeup, wait again for the time left
			timeout = remaining(timeout, deadline)
			continue
		}
		if err != nil {
			return 0, &PortError{code: ReadFailed, causedBy: err}
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (port *unixPort) Write(p []byte) (int, error) {
	if err := port.lock(); err != nil {
		return 0, err
	}
	defer port.closeLock.RUnlock()

	timeout := port.writeTimeout
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(p) {
		res, err := unixutils.Wait(port.handle, unixutils.Writable, port.closeSignal.ReadFD(), timeout)
		if err != nil {
			return written, &PortError{code: WriteFailed, causedBy: err}
		}
		switch res {
		case unixutils.Canceled:
			return written, &PortError{code: PortClosed}
		case unixutils.Expired:
			return written, &PortError{code: Timeout}
		}

		n, err := unix.Write(port.handle, p[written:])
		if n > 0 {
			written += n
		}
		if err != nil && err != unix.EAGAIN && err != unix.EINTR {
			return written, &PortError{code: WriteFailed, causedBy: err}
		}
		timeout = remaining(timeout, deadline)
	}
	return written, nil
}

// remaining returns the part of timeout left before deadline. Infinite
// and zero timeouts are returned unchanged.
func remaining(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout <= 0 {
		return timeout
	}
	if left := time.Until(deadline); left > 0 {
		return left
	}
	return 0
}

func (port *unixPort) SetMode(mode *Mode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	m := mode.withDefaults()

	if err := port.lock(); err != nil {
		return err
	}
	defer port.closeLock.RUnlock()

	if m == port.mode {
		return nil
	}
	return port.applyMode(&m)
}

// applyMode programs every field of mode in a single termios update, the
// non-standard baud rate path, if needed, runs afterwards. A frame format
// the device does not keep is rolled back. A failure of the non-standard
// baud rate path leaves the other fields applied.
func (port *unixPort) applyMode(mode *Mode) error {
	settings, err := port.getTermSettings()
	if err != nil {
		return &PortError{code: InvalidSerialPort, causedBy: err}
	}
	previous := *settings
	special, err := setTermSettingsBaudrate(mode.BaudRate, settings)
	if err != nil {
		return err
	}
	if err := setTermSettingsParity(mode.Parity, settings); err != nil {
		return err
	}
	if err := setTermSettingsDataBits(mode.DataBits, settings); err != nil {
		return err
	}
	if err := setTermSettingsStopBits(mode.StopBits, settings); err != nil {
		return err
	}
	if err := setTermSettingsFlowControl(mode.FlowControl, settings); err != nil {
		return err
	}

	port.mode = Mode{}
	if err := port.commitTermSettings(&previous, settings); err != nil {
		return err
	}
	if special {
		if err := specialBaudrate(port, uint32(mode.BaudRate)); err != nil {
			return &PortError{code: UnsupportedSpeed, causedBy: err}
		}
	}
	port.mode = *mode
	return nil
}

// commitTermSettings writes settings and reads them back. When the device
// did not keep the frame format the previous settings are written again.
func (port *unixPort) commitTermSettings(previous, settings *unix.Termios) error {
	if err := port.setTermSettings(settings); err != nil {
		return &PortError{code: ConfigurationRejected, causedBy: err}
	}
	applied, err := port.getTermSettings()
	if err != nil {
		err = &PortError{code: ConfigurationRejected, causedBy: err}
	} else {
		err = checkTermSettings(settings, applied)
	}
	if err != nil {
		port.setTermSettings(previous)
		return err
	}
	return nil
}

// updateTermSettings reads the terminal settings, lets edit change them
// and writes them back. The cached mode is refreshed through update, or
// dropped when the device refuses the change.
func (port *unixPort) updateTermSettings(edit func(*unix.Termios) error, update func(*Mode)) error {
	if err := port.lock(); err != nil {
		return err
	}
	defer port.closeLock.RUnlock()

	settings, err := port.getTermSettings()
	if err != nil {
		return &PortError{code: OsError, causedBy: err}
	}
	previous := *settings
	if err := edit(settings); err != nil {
		return err
	}
	if err := port.commitTermSettings(&previous, settings); err != nil {
		port.mode = Mode{}
		return err
	}
	if port.mode != (Mode{}) {
		update(&port.mode)
	}
	return nil
}

func (port *unixPort) SetBaudRate(baudRate int) error {
	if !validBaudRate(baudRate) {
		return &PortError{code: InvalidSpeed, causedBy: fmt.Errorf("baud rate %d out of range", baudRate)}
	}
	if err := port.lock(); err != nil {
		return err
	}
	defer port.closeLock.RUnlock()

	settings, err := port.getTermSettings()
	if err != nil {
		return &PortError{code: InvalidSpeed, causedBy: err}
	}
	special, err := setTermSettingsBaudrate(baudRate, settings)
	if err != nil {
		return err
	}
	if special {
		if err := specialBaudrate(port, uint32(baudRate)); err != nil {
			port.mode = Mode{}
			return &PortError{code: UnsupportedSpeed, causedBy: err}
		}
	} else if err := port.setTermSettings(settings); err != nil {
		port.mode = Mode{}
		return &PortError{code: InvalidSpeed, causedBy: err}
	}
	if port.mode != (Mode{}) {
		port.mode.BaudRate = baudRate
	}
	return nil
}

func (port *unixPort) BaudRate() (int, error) {
	if err := port.lock(); err != nil {
		return 0, err
	}
	defer port.closeLock.RUnlock()

	speed, err := port.getBaudrate()
	if err != nil {
		return 0, &PortError{code: OsError, causedBy: err}
	}
	return speed, nil
}

func (port *unixPort) SetDataBits(dataBits int) error {
	return port.updateTermSettings(
		func(settings *unix.Termios) error { return setTermSettingsDataBits(dataBits, settings) },
		func(mode *Mode) { mode.DataBits = dataBits })
}

func (port *unixPort) DataBits() (int, error) {
	settings, err := port.readTermSettings()
	if err != nil {
		return 0, err
	}
	size := settings.Cflag & unix.CSIZE
	for bits, flag := range databitsMap {
		if flag == size {
			return bits, nil
		}
	}
	return 0, &PortError{code: InvalidDataBits}
}

func (port *unixPort) SetParity(parity Parity) error {
	return port.updateTermSettings(
		func(settings *unix.Termios) error { return setTermSettingsParity(parity, settings) },
		func(mode *Mode) { mode.Parity = parity })
}

func (port *unixPort) Parity() (Parity, error) {
	settings, err := port.readTermSettings()
	if err != nil {
		return NoParity, err
	}
	if settings.Cflag&unix.PARENB == 0 {
		return NoParity, nil
	}
	odd := settings.Cflag&unix.PARODD != 0
	if settings.Cflag&tcCMSPAR != 0 {
		if odd {
			return MarkParity, nil
		}
		return SpaceParity, nil
	}
	if odd {
		return OddParity, nil
	}
	return EvenParity, nil
}

func (port *unixPort) SetStopBits(stopBits StopBits) error {
	return port.updateTermSettings(
		func(settings *unix.Termios) error { return setTermSettingsStopBits(stopBits, settings) },
		func(mode *Mode) { mode.StopBits = stopBits })
}

func (port *unixPort) StopBits() (StopBits, error) {
	settings, err := port.readTermSettings()
	if err != nil {
		return OneStopBit, err
	}
	if settings.Cflag&unix.CSTOPB != 0 {
		return TwoStopBits, nil
	}
	return OneStopBit, nil
}

func (port *unixPort) SetFlowControl(flowControl FlowControl) error {
	return port.updateTermSettings(
		func(settings *unix.Termios) error { return setTermSettingsFlowControl(flowControl, settings) },
		func(mode *Mode) { mode.FlowControl = flowControl })
}

func (port *unixPort) FlowControl() (FlowControl, error) {
	settings, err := port.readTermSettings()
	if err != nil {
		return NoFlowControl, err
	}
	if tcCRTSCTS != 0 && settings.Cflag&tcCRTSCTS != 0 {
		return HardwareFlowControl, nil
	}
	if settings.Iflag&(unix.IXON|unix.IXOFF) != 0 {
		return SoftwareFlowControl, nil
	}
	return NoFlowControl, nil
}

func (port *unixPort) SetReadTimeout(t time.Duration) error {
	if err := checkTimeout(t); err != nil {
		return err
	}
	port.readTimeout = t
	return nil
}

func (port *unixPort) ReadTimeout() time.Duration {
	return port.readTimeout
}

func (port *unixPort) SetWriteTimeout(t time.Duration) error {
	if err := checkTimeout(t); err != nil {
		return err
	}
	port.writeTimeout = t
	return nil
}

func (port *unixPort) WriteTimeout() time.Duration {
	return port.writeTimeout
}

func (port *unixPort) ResetInputBuffer() error {
	return port.ioctl(func(fd int) error { return flushQueue(fd, tcInputQueue) })
}

func (port *unixPort) ResetOutputBuffer() error {
	return port.ioctl(func(fd int) error { return flushQueue(fd, tcOutputQueue) })
}

func (port *unixPort) BytesToRead() (int, error) {
	var n int
	err := port.ioctl(func(fd int) (err error) {
		n, err = unix.IoctlGetInt(fd, ioctlBytesToRead)
		return err
	})
	return n, err
}

func (port *unixPort) BytesToWrite() (int, error) {
	var n int
	err := port.ioctl(func(fd int) (err error) {
		n, err = unix.IoctlGetInt(fd, unix.TIOCOUTQ)
		return err
	})
	return n, err
}

func (port *unixPort) Drain() error {
	return port.ioctl(drain)
}

func (port *unixPort) Break(duration time.Duration) error {
	return port.ioctl(func(fd int) error {
		if err := unix.IoctlSetInt(fd, unix.TIOCSBRK, 0); err != nil {
			return err
		}
		time.Sleep(duration)
		return unix.IoctlSetInt(fd, unix.TIOCCBRK, 0)
	})
}

func (port *unixPort) SetDTR(dtr bool) error {
	return port.setModemBit(unix.TIOCM_DTR, dtr)
}

func (port *unixPort) SetRTS(rts bool) error {
	return port.setModemBit(unix.TIOCM_RTS, rts)
}

func (port *unixPort) setModemBit(bit int, value bool) error {
	req := uint(unix.TIOCMBIC)
	if value {
		req = unix.TIOCMBIS
	}
	return port.ioctl(func(fd int) error { return unix.IoctlSetPointerInt(fd, req, bit) })
}

func (port *unixPort) GetModemStatusBits() (*ModemStatusBits, error) {
	var status int
	err := port.ioctl(func(fd int) (err error) {
		status, err = unix.IoctlGetInt(fd, unix.TIOCMGET)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ModemStatusBits{
		CTS: status&unix.TIOCM_CTS != 0,
		DCD: status&unix.TIOCM_CD != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
	}, nil
}

func (port *unixPort) Name() string {
	return port.name
}

func (port *unixPort) Fd() uintptr {
	return uintptr(port.handle)
}

// ioctl runs f on the open handle and wraps its error as an OsError.
func (port *unixPort) ioctl(f func(fd int) error) error {
	if err := port.lock(); err != nil {
		return err
	}
	defer port.closeLock.RUnlock()

	if err := f(port.handle); err != nil {
		return &PortError{code: OsError, causedBy: err}
	}
	return nil
}

func openError(err error) error {
	switch err {
	case unix.EBUSY:
		return &PortError{code: PortBusy, causedBy: err}
	case unix.EACCES, unix.EPERM:
		return &PortError{code: PermissionDenied, causedBy: err}
	case unix.ENOENT, unix.ENXIO, unix.ENODEV:
		return &PortError{code: PortNotFound, causedBy: err}
	}
	return resourceError(err)
}

func resourceError(err error) error {
	switch err {
	case unix.EMFILE, unix.ENFILE, unix.ENOSPC, unix.ENOMEM, unix.EAGAIN:
		return &PortError{code: ResourceExhausted, causedBy: err}
	}
	return &PortError{code: OsError, causedBy: err}
}

// termios manipulation functions

// Frame format bits compared after an update, drivers may ignore some
// of them without failing the request.
const (
	frameCflags = unix.CSIZE | unix.PARENB | unix.PARODD | tcCMSPAR | unix.CSTOPB | tcCRTSCTS
	frameIflags = unix.IXON | unix.IXOFF
)

// checkTermSettings compares the frame format of the settings read back
// from the device with the requested one.
func checkTermSettings(want, got *unix.Termios) error {
	if want.Cflag&frameCflags != got.Cflag&frameCflags || want.Iflag&frameIflags != got.Iflag&frameIflags {
		return &PortError{code: ConfigurationRejected, causedBy: fmt.Errorf(
			"device kept cflag %#x iflag %#x, requested cflag %#x iflag %#x",
			got.Cflag&frameCflags, got.Iflag&frameIflags, want.Cflag&frameCflags, want.Iflag&frameIflags)}
	}
	return nil
}

var databitsMap = map[int]tcflag{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

func setTermSettingsParity(parity Parity, settings *unix.Termios) error {
	switch parity {
	case NoParity:
		settings.Cflag &^= unix.PARENB | unix.PARODD | tcCMSPAR
		settings.Iflag &^= unix.INPCK
	case OddParity:
		settings.Cflag |= unix.PARENB | unix.PARODD
		settings.Cflag &^= tcCMSPAR
		settings.Iflag |= unix.INPCK
	case EvenParity:
		settings.Cflag &^= unix.PARODD | tcCMSPAR
		settings.Cflag |= unix.PARENB
		settings.Iflag |= unix.INPCK
	case MarkParity:
		if tcCMSPAR == 0 {
			return &PortError{code: InvalidParity}
		}
		settings.Cflag |= unix.PARENB | unix.PARODD | tcCMSPAR
		settings.Iflag |= unix.INPCK
	case SpaceParity:
		if tcCMSPAR == 0 {
			return &PortError{code: InvalidParity}
		}
		settings.Cflag &^= unix.PARODD
		settings.Cflag |= unix.PARENB | tcCMSPAR
		settings.Iflag |= unix.INPCK
	default:
		return &PortError{code: InvalidParity}
	}
	return nil
}

func setTermSettingsDataBits(bits int, settings *unix.Termios) error {
	databits, ok := databitsMap[bits]
	if !ok {
		return &PortError{code: InvalidDataBits}
	}
	settings.Cflag &^= unix.CSIZE
	settings.Cflag |= databits
	return nil
}

func setTermSettingsStopBits(bits StopBits, settings *unix.Termios) error {
	switch bits {
	case OneStopBit:
		settings.Cflag &^= unix.CSTOPB
	case TwoStopBits:
		settings.Cflag |= unix.CSTOPB
	default:
		return &PortError{code: InvalidStopBits}
	}
	return nil
}

func setTermSettingsFlowControl(flow FlowControl, settings *unix.Termios) error {
	switch flow {
	case NoFlowControl:
		settings.Cflag &^= tcCRTSCTS
		settings.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	case SoftwareFlowControl:
		settings.Cflag &^= tcCRTSCTS
		settings.Iflag &^= unix.IXANY
		settings.Iflag |= unix.IXON | unix.IXOFF
	case HardwareFlowControl:
		if tcCRTSCTS == 0 {
			return &PortError{code: InvalidFlowControl}
		}
		settings.Cflag |= tcCRTSCTS
		settings.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	default:
		return &PortError{code: InvalidFlowControl}
	}
	return nil
}

func setRawMode(settings *unix.Termios) {
	// Set local mode
	settings.Cflag |= unix.CREAD | unix.CLOCAL

	// Set raw mode
	settings.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK |
		unix.ECHONL | unix.ECHOCTL | unix.ECHOPRT | unix.ECHOKE | unix.ISIG | unix.IEXTEN
	settings.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY | unix.INPCK |
		unix.IGNPAR | unix.PARMRK | unix.ISTRIP | unix.IGNBRK | unix.BRKINT | unix.INLCR |
		unix.IGNCR | unix.ICRNL | tcIUCLC
	settings.Oflag &^= unix.OPOST

	// The handle is non-blocking, readiness is waited with poll
	settings.Cc[unix.VMIN] = 1
	settings.Cc[unix.VTIME] = 0
}

// native syscall wrapper functions

func (port *unixPort) getTermSettings() (*unix.Termios, error) {
	return unix.IoctlGetTermios(port.handle, ioctlTcgetattr)
}

func (port *unixPort) setTermSettings(settings *unix.Termios) error {
	return unix.IoctlSetTermios(port.handle, ioctlTcsetattr, settings)
}

// readTermSettings is getTermSettings guarded against a concurrent Close.
func (port *unixPort) readTermSettings() (*unix.Termios, error) {
	if err := port.lock(); err != nil {
		return nil, err
	}
	defer port.closeLock.RUnlock()

	settings, err := port.getTermSettings()
	if err != nil {
		return nil, &PortError{code: OsError, causedBy: err}
	}
	return settings, nil
}

func (port *unixPort) acquireExclusiveAccess() error {
	return unix.IoctlSetInt(port.handle, unix.TIOCEXCL, 0)
}

func (port *unixPort) releaseExclusiveAccess() error {
	return unix.IoctlSetInt(port.handle, unix.TIOCNXCL, 0)
}
