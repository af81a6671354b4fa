//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// NoTimeout should be used as a parameter to SetReadTimeout or
// SetWriteTimeout to disable the timeout and block indefinitely.
const NoTimeout time.Duration = -1

// Port is the interface for a serial Port
type Port interface {
	// Stores data received from the serial port into the provided byte array
	// buffer. The function returns the number of bytes read.
	//
	// The Read function blocks until (at least) one byte is received from
	// the serial port, the read timeout expires or an error occurs.
	// An expired timeout is reported as a PortError with code Timeout.
	io.Reader

	// Send the content of the data byte array to the serial port.
	// Returns the number of bytes written. If the write timeout expires
	// before all the data is sent the bytes written so far are returned
	// together with a Timeout error.
	io.Writer

	// Close the serial port. Closing an already closed port is a no-op.
	io.Closer

	// SetMode sets all parameters of the serial port
	SetMode(mode *Mode) error

	// SetBaudRate changes the port speed. Rates missing from the OS
	// table are programmed through the driver specific custom-rate path.
	SetBaudRate(baudRate int) error

	// BaudRate returns the speed currently programmed in the device.
	BaudRate() (int, error)

	// SetDataBits sets the character size (5, 6, 7 or 8 bits)
	SetDataBits(dataBits int) error

	// DataBits returns the character size currently programmed in the device.
	DataBits() (int, error)

	// SetParity sets the parity mode
	SetParity(parity Parity) error

	// Parity returns the parity mode currently programmed in the device.
	Parity() (Parity, error)

	// SetStopBits sets the number of stop bits
	SetStopBits(stopBits StopBits) error

	// StopBits returns the stop bits currently programmed in the device.
	StopBits() (StopBits, error)

	// SetFlowControl sets the flow control mode
	SetFlowControl(flowControl FlowControl) error

	// FlowControl returns the flow control currently programmed in the device.
	FlowControl() (FlowControl, error)

	// SetReadTimeout sets the timeout for the Read operation or use
	// NoTimeout to disable read timeout. A zero timeout makes Read
	// return immediately when no data is available.
	SetReadTimeout(t time.Duration) error

	// ReadTimeout returns the current read timeout
	ReadTimeout() time.Duration

	// SetWriteTimeout sets the timeout for the Write operation or use
	// NoTimeout to disable write timeout.
	SetWriteTimeout(t time.Duration) error

	// WriteTimeout returns the current write timeout
	WriteTimeout() time.Duration

	// ResetInputBuffer Purges port read buffer
	ResetInputBuffer() error

	// ResetOutputBuffer Purges port write buffer
	ResetOutputBuffer() error

	// BytesToRead returns the number of bytes waiting in the input buffer
	BytesToRead() (int, error)

	// BytesToWrite returns the number of bytes waiting in the output buffer
	BytesToWrite() (int, error)

	// Drain waits until all the data in the output buffer is transmitted
	Drain() error

	// Break sends a break for the specified duration
	Break(duration time.Duration) error

	// SetDTR sets the modem status bit DataTerminalReady
	SetDTR(dtr bool) error

	// SetRTS sets the modem status bit RequestToSend
	SetRTS(rts bool) error

	// GetModemStatusBits returns a ModemStatusBits structure containing the
	// modem status bits for the serial port (CTS, DSR, etc...)
	GetModemStatusBits() (*ModemStatusBits, error)

	// Name returns the path used to open the port
	Name() string

	// Fd returns the raw OS handle (file descriptor or HANDLE) owned by
	// the port. The handle stays owned by the port: it must not be closed
	// by the caller and becomes invalid after Close.
	Fd() uintptr
}

// ModemStatusBits contains all the modem status bits for a serial port (CTS, DSR, etc...).
// It can be retrieved with the Port.GetModemStatusBits() method.
type ModemStatusBits struct {
	CTS bool // ClearToSend status
	DSR bool // DataSetReady status
	RI  bool // RingIndicator status
	DCD bool // DataCarrierDetect status
}

// Open opens the serial port using the specified modes.
// A nil mode opens the port at 9600_8N1 without flow control.
func Open(portName string, mode *Mode) (Port, error) {
	if mode == nil {
		mode = &Mode{}
	}
	return nativeOpen(portName, mode, defaultOptions())
}

// Pair creates a pair of connected virtual serial ports backed by a
// pseudo-terminal. Everything written on the controller can be read on
// the follower and vice versa.
//
// Closing the controller may invalidate the follower on some platforms,
// so keep the controller open for as long as the follower is in use.
// The pseudo-terminal allocation is delegated to the OS and may not be
// reentrant on every platform: callers creating many pairs from several
// goroutines should expect the allocations to be serialized.
//
// Pair is not available on Windows, where it returns a
// FunctionNotImplemented error.
func Pair() (controller Port, follower Port, err error) {
	return nativePair()
}

// options are the open-time settings that are not part of the line mode.
type options struct {
	readTimeout    time.Duration
	writeTimeout   time.Duration
	exclusive      bool
	restoreOnClose bool
}

func defaultOptions() options {
	return options{
		readTimeout:  NoTimeout,
		writeTimeout: NoTimeout,
		exclusive:    true,
	}
}

// Mode describes a serial port configuration.
type Mode struct {
	BaudRate    int         // The serial port bitrate (aka Baudrate), 0 means 9600
	DataBits    int         // Size of the character (must be 5, 6, 7 or 8), 0 means 8
	Parity      Parity      // Parity (see Parity type for more info)
	StopBits    StopBits    // Stop bits (see StopBits type for more info)
	FlowControl FlowControl // Flow control (see FlowControl type for more info)
}

const (
	defaultBaudRate = 9600
	defaultDataBits = 8
)

// Validate checks the mode values without touching any device.
func (mode *Mode) Validate() error {
	if mode.BaudRate != 0 && !validBaudRate(mode.BaudRate) {
		return &PortError{code: InvalidSpeed, causedBy: fmt.Errorf("baud rate %d out of range", mode.BaudRate)}
	}
	switch mode.DataBits {
	case 0, 5, 6, 7, 8:
	default:
		return &PortError{code: InvalidDataBits, causedBy: fmt.Errorf("%d data bits", mode.DataBits)}
	}
	if mode.Parity < NoParity || mode.Parity > SpaceParity {
		return &PortError{code: InvalidParity}
	}
	if mode.StopBits < OneStopBit || mode.StopBits > TwoStopBits {
		return &PortError{code: InvalidStopBits}
	}
	if mode.FlowControl < NoFlowControl || mode.FlowControl > HardwareFlowControl {
		return &PortError{code: InvalidFlowControl}
	}
	return nil
}

// validBaudRate reports whether rate is a positive 32-bit value.
func validBaudRate(rate int) bool {
	return rate > 0 && int64(rate) <= math.MaxUint32
}

// withDefaults returns a copy of the mode with zero fields replaced by defaults.
func (mode Mode) withDefaults() Mode {
	if mode.BaudRate == 0 {
		mode.BaudRate = defaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = defaultDataBits
	}
	return mode
}

// String renders the mode in the "115200_8N1" notation.
func (mode Mode) String() string {
	m := mode.withDefaults()
	s := fmt.Sprintf("%d_%d%c%s", m.BaudRate, m.DataBits, m.Parity.letter(), m.StopBits)
	switch m.FlowControl {
	case SoftwareFlowControl:
		s += "_xonxoff"
	case HardwareFlowControl:
		s += "_rtscts"
	}
	return s
}

// ModeFromString parses a frame format like "8N1", "115200_8E2" or
// "115200_8N1_rtscts" into mode. The baud rate is left untouched when it
// is not present in the string, a missing "_xonxoff" or "_rtscts" suffix
// means no flow control.
func ModeFromString(s string, mode *Mode) error {
	parts := strings.Split(s, "_")
	flow := NoFlowControl
	if n := len(parts); n > 1 {
		switch parts[n-1] {
		case "xonxoff":
			flow = SoftwareFlowControl
			parts = parts[:n-1]
		case "rtscts":
			flow = HardwareFlowControl
			parts = parts[:n-1]
		}
	}

	var frame string
	switch len(parts) {
	case 1:
		frame = parts[0]
	case 2:
		baud, err := strconv.Atoi(parts[0])
		if err != nil || !validBaudRate(baud) {
			return &PortError{code: InvalidSpeed, causedBy: fmt.Errorf("invalid baud rate in %q", s)}
		}
		mode.BaudRate = baud
		frame = parts[1]
	default:
		return &PortError{code: InvalidFlowControl, causedBy: fmt.Errorf("invalid flow control in %q", s)}
	}
	if len(frame) != 3 {
		return &PortError{code: InvalidDataBits, causedBy: fmt.Errorf("invalid frame format %q", s)}
	}

	switch frame[0] {
	case '5', '6', '7', '8':
		mode.DataBits = int(frame[0] - '0')
	default:
		return &PortError{code: InvalidDataBits}
	}

	switch frame[1] {
	case 'N', 'n':
		mode.Parity = NoParity
	case 'O', 'o':
		mode.Parity = OddParity
	case 'E', 'e':
		mode.Parity = EvenParity
	case 'M', 'm':
		mode.Parity = MarkParity
	case 'S', 's':
		mode.Parity = SpaceParity
	default:
		return &PortError{code: InvalidParity}
	}

	switch frame[2] {
	case '1':
		mode.StopBits = OneStopBit
	case '2':
		mode.StopBits = TwoStopBits
	default:
		return &PortError{code: InvalidStopBits}
	}
	mode.FlowControl = flow
	return nil
}

// Parity describes a serial port parity setting
type Parity int

const (
	// NoParity disable parity control (default)
	NoParity Parity = iota
	// OddParity enable odd-parity check
	OddParity
	// EvenParity enable even-parity check
	EvenParity
	// MarkParity enable mark-parity (always 1) check
	MarkParity
	// SpaceParity enable space-parity (always 0) check
	SpaceParity
)

func (p Parity) letter() byte {
	if p < NoParity || p > SpaceParity {
		return '?'
	}
	return "NOEMS"[p]
}

func (p Parity) String() string {
	switch p {
	case NoParity:
		return "none"
	case OddParity:
		return "odd"
	case EvenParity:
		return "even"
	case MarkParity:
		return "mark"
	case SpaceParity:
		return "space"
	}
	return "Parity(" + strconv.Itoa(int(p)) + ")"
}

// StopBits describe a serial port stop bits setting
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default)
	OneStopBit StopBits = iota
	// TwoStopBits sets 2 stop bits
	TwoStopBits
)

func (s StopBits) String() string {
	switch s {
	case OneStopBit:
		return "1"
	case TwoStopBits:
		return "2"
	}
	return "StopBits(" + strconv.Itoa(int(s)) + ")"
}

// FlowControl describes a serial port flow control setting
type FlowControl int

const (
	// NoFlowControl disables flow control (default)
	NoFlowControl FlowControl = iota
	// SoftwareFlowControl enables XON/XOFF flow control
	SoftwareFlowControl
	// HardwareFlowControl enables RTS/CTS flow control
	HardwareFlowControl
)

func (f FlowControl) String() string {
	switch f {
	case NoFlowControl:
		return "none"
	case SoftwareFlowControl:
		return "software"
	case HardwareFlowControl:
		return "hardware"
	}
	return "FlowControl(" + strconv.Itoa(int(f)) + ")"
}

// PortError is a platform independent error type for serial ports
type PortError struct {
	code     PortErrorCode
	causedBy error
}

// PortErrorCode is a code to easily identify the type of error
type PortErrorCode int

const (
	// PortBusy the serial port is already in used by another process
	PortBusy PortErrorCode = iota
	// PortNotFound the requested port doesn't exist
	PortNotFound
	// InvalidSerialPort the requested port is not a serial port
	InvalidSerialPort
	// PermissionDenied the user doesn't have enough priviledges
	PermissionDenied
	// InvalidSpeed the requested speed is not valid or not supported
	InvalidSpeed
	// UnsupportedSpeed the driver rejected a non-standard speed
	UnsupportedSpeed
	// InvalidDataBits the number of data bits is not valid or not supported
	InvalidDataBits
	// InvalidParity the selected parity is not valid or not supported
	InvalidParity
	// InvalidStopBits the selected number of stop bits is not valid or not supported
	InvalidStopBits
	// InvalidFlowControl the selected flow control is not valid or not supported
	InvalidFlowControl
	// InvalidTimeoutValue the timeout value is not valid or not supported
	InvalidTimeoutValue
	// ConfigurationRejected the device refused the requested line settings
	ConfigurationRejected
	// Timeout the read or write timeout expired
	Timeout
	// ResourceExhausted the OS could not allocate the requested resource
	ResourceExhausted
	// PortClosed the port has been closed while the operation is in progress
	PortClosed
	// FunctionNotImplemented the requested function is not implemented
	FunctionNotImplemented
	// OsError operating system function error
	OsError
	// WriteFailed port write failed
	WriteFailed
	// ReadFailed port read failed
	ReadFailed
)

// ErrorKind groups the error codes in the categories a caller acts upon.
type ErrorKind int

const (
	// IoError is an uncategorized OS failure
	IoError ErrorKind = iota
	// DeviceError the device path could not be opened
	DeviceError
	// ConfigurationError a configuration field was rejected
	ConfigurationError
	// UnsupportedRate a non-standard baud rate was rejected by the driver
	UnsupportedRate
	// TimedOut the I/O deadline elapsed; the operation may be retried
	TimedOut
	// ResourceError the OS ran out of resources
	ResourceError
)

func (k ErrorKind) String() string {
	switch k {
	case DeviceError:
		return "device error"
	case ConfigurationError:
		return "configuration error"
	case UnsupportedRate:
		return "unsupported rate"
	case TimedOut:
		return "timed out"
	case ResourceError:
		return "resource error"
	}
	return "I/O error"
}

// EncodedErrorString returns a string explaining the error code
func (e PortError) EncodedErrorString() string {
	switch e.code {
	case PortBusy:
		return "Serial port busy"
	case PortNotFound:
		return "Serial port not found"
	case InvalidSerialPort:
		return "Invalid serial port"
	case PermissionDenied:
		return "Permission denied"
	case InvalidSpeed:
		return "Port speed invalid or not supported"
	case UnsupportedSpeed:
		return "Port speed not supported by the driver"
	case InvalidDataBits:
		return "Port data bits invalid or not supported"
	case InvalidParity:
		return "Port parity invalid or not supported"
	case InvalidStopBits:
		return "Port stop bits invalid or not supported"
	case InvalidFlowControl:
		return "Port flow control invalid or not supported"
	case InvalidTimeoutValue:
		return "Timeout value invalid or not supported"
	case ConfigurationRejected:
		return "Port configuration rejected by the device"
	case Timeout:
		return "Timeout expired"
	case ResourceExhausted:
		return "Resources exhausted"
	case PortClosed:
		return "Port has been closed"
	case FunctionNotImplemented:
		return "Function not implemented"
	case OsError:
		return "Operating system error"
	case WriteFailed:
		return "Write failed"
	case ReadFailed:
		return "Read failed"
	default:
		return "Other error"
	}
}

// Error returns the complete error code with details on the cause of the error
func (e PortError) Error() string {
	if e.causedBy != nil {
		return e.EncodedErrorString() + ": " + e.causedBy.Error()
	}
	return e.EncodedErrorString()
}

// Code returns an identifier for the kind of error occurred
func (e PortError) Code() PortErrorCode {
	return e.code
}

// Kind returns the category of the error
func (e PortError) Kind() ErrorKind {
	switch e.code {
	case PortBusy, PortNotFound, InvalidSerialPort, PermissionDenied:
		return DeviceError
	case InvalidSpeed, InvalidDataBits, InvalidParity, InvalidStopBits, InvalidFlowControl, InvalidTimeoutValue, ConfigurationRejected:
		return ConfigurationError
	case UnsupportedSpeed:
		return UnsupportedRate
	case Timeout:
		return TimedOut
	case ResourceExhausted:
		return ResourceError
	}
	return IoError
}

// Unwrap returns the underlying OS error, if any
func (e PortError) Unwrap() error {
	return e.causedBy
}

// Timeout reports whether the error is an expired read or write timeout.
// It makes os.IsTimeout work on port errors.
func (e PortError) Timeout() bool {
	return e.code == Timeout
}

// Is makes errors.Is(err, os.ErrDeadlineExceeded) true for timeouts.
func (e PortError) Is(target error) bool {
	return e.code == Timeout && target == os.ErrDeadlineExceeded
}

// KindOf returns the ErrorKind of err, or IoError if err is not a PortError.
func KindOf(err error) ErrorKind {
	var portErr *PortError
	if errors.As(err, &portErr) {
		return portErr.Kind()
	}
	return IoError
}

// IsTimeout reports whether err is a read or write timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == TimedOut
}
