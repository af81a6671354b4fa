//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

//go:build linux || darwin || freebsd || netbsd || openbsd

package serialport

import (
	"io"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPair(t *testing.T) (Port, Port) {
	controller, follower, err := Pair()
	require.NoError(t, err)
	t.Cleanup(func() {
		follower.Close()
		controller.Close()
	})
	return controller, follower
}

func requireCode(t *testing.T, code PortErrorCode, err error) {
	t.Helper()
	var portErr *PortError
	require.ErrorAs(t, err, &portErr)
	require.Equal(t, code, portErr.Code(), err.Error())
}

func TestPair(t *testing.T) {
	controller, follower := newTestPair(t)
	for _, port := range []Port{controller, follower} {
		require.NoError(t, port.SetReadTimeout(10*time.Millisecond))
		require.NoError(t, port.SetWriteTimeout(10*time.Millisecond))
	}

	require.Greater(t, controller.Fd(), uintptr(0))
	require.Greater(t, follower.Fd(), uintptr(0))
	require.NotEqual(t, controller.Fd(), follower.Fd())
	require.NotEmpty(t, follower.Name())

	msg := "Test Message"
	n, err := controller.Write([]byte(msg))
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	require.NoError(t, follower.SetReadTimeout(time.Second))
	buf := make([]byte, len(msg))
	_, err = io.ReadFull(follower, buf)
	require.NoError(t, err)
	require.Equal(t, msg, string(buf))

	// The other way around
	n, err = follower.Write([]byte("pong"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, controller.SetReadTimeout(time.Second))
	buf = make([]byte, 4)
	_, err = io.ReadFull(controller, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))
}

func TestPairFollowerSettings(t *testing.T) {
	_, follower := newTestPair(t)

	if runtime.GOOS != "darwin" {
		speed, err := follower.BaudRate()
		require.NoError(t, err)
		require.Equal(t, 9600, speed)
	}
	bits, err := follower.DataBits()
	require.NoError(t, err)
	require.Equal(t, 8, bits)
	parity, err := follower.Parity()
	require.NoError(t, err)
	require.Equal(t, NoParity, parity)
	stopBits, err := follower.StopBits()
	require.NoError(t, err)
	require.Equal(t, OneStopBit, stopBits)
	require.Equal(t, NoTimeout, follower.ReadTimeout())
	require.Equal(t, NoTimeout, follower.WriteTimeout())
}

func TestReadTimeout(t *testing.T) {
	controller, _ := newTestPair(t)
	require.NoError(t, controller.SetReadTimeout(time.Second))
	require.NoError(t, controller.SetWriteTimeout(time.Second))

	start := time.Now()
	n, err := controller.Read(make([]byte, 1))
	elapsed := time.Since(start)

	require.Equal(t, 0, n)
	requireCode(t, Timeout, err)
	require.True(t, IsTimeout(err))
	require.True(t, os.IsTimeout(err))
	require.GreaterOrEqual(t, elapsed, 990*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

func TestZeroReadTimeout(t *testing.T) {
	controller, follower := newTestPair(t)
	require.NoError(t, follower.SetReadTimeout(0))

	start := time.Now()
	_, err := follower.Read(make([]byte, 8))
	requireCode(t, Timeout, err)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	_, err = controller.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := follower.Read(make([]byte, 8))
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEmptyRead(t *testing.T) {
	_, follower := newTestPair(t)
	n, err := follower.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWriteTimeout(t *testing.T) {
	_, follower := newTestPair(t)
	require.NoError(t, follower.SetWriteTimeout(100*time.Millisecond))

	// Nobody reads the controller side, the pty buffer fills up
	data := make([]byte, 1<<20)
	start := time.Now()
	n, err := follower.Write(data)
	requireCode(t, Timeout, err)
	require.Less(t, n, len(data))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSetStandardBaudRate(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("pseudo terminals do not report the programmed speed on darwin")
	}
	_, follower := newTestPair(t)

	for _, speed := range []int{9600, 57600, 115200} {
		require.NoError(t, follower.SetBaudRate(speed))
		got, err := follower.BaudRate()
		require.NoError(t, err)
		require.Equal(t, speed, got)
	}
	requireCode(t, InvalidSpeed, follower.SetBaudRate(0))
}

// driverKeeps applies edit straight to the terminal behind port and
// reports whether the driver kept the frame format. The previous settings
// are written back.
func driverKeeps(t *testing.T, port Port, edit func(*unix.Termios) error) bool {
	t.Helper()
	fd := int(port.Fd())
	saved, err := unix.IoctlGetTermios(fd, ioctlTcgetattr)
	require.NoError(t, err)
	want := *saved
	require.NoError(t, edit(&want))
	require.NoError(t, unix.IoctlSetTermios(fd, ioctlTcsetattr, &want))
	got, err := unix.IoctlGetTermios(fd, ioctlTcgetattr)
	require.NoError(t, err)
	require.NoError(t, unix.IoctlSetTermios(fd, ioctlTcsetattr, saved))
	return checkTermSettings(&want, got) == nil
}

func driverKeepsMode(t *testing.T, port Port, mode Mode) bool {
	t.Helper()
	return driverKeeps(t, port, func(settings *unix.Termios) error {
		if err := setTermSettingsDataBits(mode.DataBits, settings); err != nil {
			return err
		}
		if err := setTermSettingsParity(mode.Parity, settings); err != nil {
			return err
		}
		if err := setTermSettingsStopBits(mode.StopBits, settings); err != nil {
			return err
		}
		return setTermSettingsFlowControl(mode.FlowControl, settings)
	})
}

// frameOf reads the frame format back through the getters.
func frameOf(t *testing.T, port Port) Mode {
	t.Helper()
	var mode Mode
	var err error
	mode.DataBits, err = port.DataBits()
	require.NoError(t, err)
	mode.Parity, err = port.Parity()
	require.NoError(t, err)
	mode.StopBits, err = port.StopBits()
	require.NoError(t, err)
	mode.FlowControl, err = port.FlowControl()
	require.NoError(t, err)
	return mode
}

// requireSetter runs set and checks that the device either took the new
// frame format or refused it with ConfigurationRejected and kept the old one.
func requireSetter(t *testing.T, port Port, edit func(*unix.Termios) error, set func() error, update func(*Mode)) {
	t.Helper()
	before := frameOf(t, port)
	kept := driverKeeps(t, port, edit)
	err := set()
	if !kept {
		requireCode(t, ConfigurationRejected, err)
		require.Equal(t, ConfigurationError, KindOf(err))
		require.Equal(t, before, frameOf(t, port))
		return
	}
	require.NoError(t, err)
	update(&before)
	require.Equal(t, before, frameOf(t, port))
}

func TestSetModeAndGetters(t *testing.T) {
	_, follower := newTestPair(t)

	for _, mode := range []Mode{
		{BaudRate: 19200, DataBits: 8, StopBits: TwoStopBits, FlowControl: SoftwareFlowControl},
		{BaudRate: 19200, DataBits: 7, Parity: EvenParity, StopBits: TwoStopBits, FlowControl: SoftwareFlowControl},
		{BaudRate: 38400, DataBits: 5, Parity: OddParity},
	} {
		before := frameOf(t, follower)
		kept := driverKeepsMode(t, follower, mode)
		err := follower.SetMode(&mode)
		if kept {
			require.NoError(t, err, mode.String())
			require.Equal(t, Mode{DataBits: mode.DataBits, Parity: mode.Parity, StopBits: mode.StopBits, FlowControl: mode.FlowControl}, frameOf(t, follower))
			// Unchanged mode is a no-op
			require.NoError(t, follower.SetMode(&mode))
			continue
		}
		requireCode(t, ConfigurationRejected, err)
		require.Equal(t, before, frameOf(t, follower), mode.String())
		// A refused mode is not cached, the retry reaches the device again
		requireCode(t, ConfigurationRejected, follower.SetMode(&mode))
	}

	require.NoError(t, follower.SetMode(&Mode{}))
	require.Equal(t, Mode{DataBits: 8}, frameOf(t, follower))

	requireSetter(t, follower,
		func(s *unix.Termios) error { return setTermSettingsDataBits(5, s) },
		func() error { return follower.SetDataBits(5) },
		func(m *Mode) { m.DataBits = 5 })
	requireSetter(t, follower,
		func(s *unix.Termios) error { return setTermSettingsParity(OddParity, s) },
		func() error { return follower.SetParity(OddParity) },
		func(m *Mode) { m.Parity = OddParity })
	requireSetter(t, follower,
		func(s *unix.Termios) error { return setTermSettingsStopBits(TwoStopBits, s) },
		func() error { return follower.SetStopBits(TwoStopBits) },
		func(m *Mode) { m.StopBits = TwoStopBits })
	requireSetter(t, follower,
		func(s *unix.Termios) error { return setTermSettingsFlowControl(SoftwareFlowControl, s) },
		func() error { return follower.SetFlowControl(SoftwareFlowControl) },
		func(m *Mode) { m.FlowControl = SoftwareFlowControl })

	// Going back to the default mode must reprogram every field
	require.NoError(t, follower.SetMode(&Mode{}))
	require.Equal(t, Mode{DataBits: 8}, frameOf(t, follower))

	requireCode(t, InvalidDataBits, follower.SetDataBits(9))
	requireCode(t, InvalidParity, follower.SetParity(Parity(12)))
	requireCode(t, InvalidStopBits, follower.SetStopBits(StopBits(5)))
	requireCode(t, InvalidFlowControl, follower.SetFlowControl(FlowControl(5)))
	requireCode(t, InvalidTimeoutValue, follower.SetReadTimeout(-time.Second))
	requireCode(t, InvalidDataBits, follower.SetMode(&Mode{DataBits: 4}))
}

func TestCheckTermSettings(t *testing.T) {
	want := &unix.Termios{}
	require.NoError(t, setTermSettingsDataBits(7, want))
	require.NoError(t, setTermSettingsParity(EvenParity, want))
	require.NoError(t, setTermSettingsStopBits(TwoStopBits, want))
	require.NoError(t, setTermSettingsFlowControl(SoftwareFlowControl, want))

	got := *want
	require.NoError(t, checkTermSettings(want, &got))

	// Fields outside the frame format are not compared
	got.Lflag |= unix.ECHO
	got.Cflag |= unix.CLOCAL
	require.NoError(t, checkTermSettings(want, &got))

	// The driver forced 8 bits without parity
	got = *want
	require.NoError(t, setTermSettingsDataBits(8, &got))
	require.NoError(t, setTermSettingsParity(NoParity, &got))
	err := checkTermSettings(want, &got)
	requireCode(t, ConfigurationRejected, err)
	require.Equal(t, ConfigurationError, KindOf(err))

	got = *want
	require.NoError(t, setTermSettingsStopBits(OneStopBit, &got))
	requireCode(t, ConfigurationRejected, checkTermSettings(want, &got))

	got = *want
	require.NoError(t, setTermSettingsFlowControl(NoFlowControl, &got))
	requireCode(t, ConfigurationRejected, checkTermSettings(want, &got))
}

func TestSpecialBaudRateRefused(t *testing.T) {
	if special, _ := setTermSettingsBaudrate(250000, &unix.Termios{}); !special {
		t.Skip("250000 is a table rate here")
	}
	_, follower := newTestPair(t)

	calls := 0
	refuse := true
	original := specialBaudrate
	t.Cleanup(func() { specialBaudrate = original })
	specialBaudrate = func(port *unixPort, speed uint32) error {
		calls++
		require.Equal(t, uint32(250000), speed)
		if refuse {
			return unix.EINVAL
		}
		return nil
	}

	err := follower.SetBaudRate(250000)
	requireCode(t, UnsupportedSpeed, err)
	require.Equal(t, UnsupportedRate, KindOf(err))
	require.ErrorIs(t, err, unix.EINVAL)

	mode := &Mode{BaudRate: 250000}
	err = follower.SetMode(mode)
	requireCode(t, UnsupportedSpeed, err)
	require.Equal(t, UnsupportedRate, KindOf(err))
	require.Equal(t, 2, calls)

	// The refused mode is not cached, an identical request is applied again
	refuse = false
	require.NoError(t, follower.SetMode(mode))
	require.Equal(t, 3, calls)
	require.NoError(t, follower.SetMode(mode))
	require.Equal(t, 3, calls)
}

func TestSetBaudRateOutOfRange(t *testing.T) {
	_, follower := newTestPair(t)
	before, err := follower.BaudRate()
	require.NoError(t, err)

	requireCode(t, InvalidSpeed, follower.SetBaudRate(overflowingBaudRate(t)))
	requireCode(t, InvalidSpeed, follower.SetMode(&Mode{BaudRate: overflowingBaudRate(t)}))
	after, err := follower.BaudRate()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestConcurrentPairs(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			controller, follower, err := Pair()
			if err != nil {
				errs <- err
				return
			}
			defer controller.Close()
			defer follower.Close()
			if err := follower.SetReadTimeout(time.Second); err != nil {
				errs <- err
				return
			}
			if _, err := controller.Write([]byte("hi")); err != nil {
				errs <- err
				return
			}
			buf := make([]byte, 2)
			if _, err := io.ReadFull(follower, buf); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestDoubleCloseIsNoop(t *testing.T) {
	controller, follower, err := Pair()
	require.NoError(t, err)
	require.NoError(t, follower.Close())
	require.NoError(t, follower.Close())
	require.NoError(t, controller.Close())
	require.NoError(t, controller.Close())
}

func TestOperationsAfterClose(t *testing.T) {
	controller, follower, err := Pair()
	require.NoError(t, err)
	defer controller.Close()
	require.NoError(t, follower.Close())

	_, err = follower.Read(make([]byte, 1))
	requireCode(t, PortClosed, err)
	_, err = follower.Write([]byte{1})
	requireCode(t, PortClosed, err)
	requireCode(t, PortClosed, follower.SetBaudRate(9600))
	requireCode(t, PortClosed, follower.SetMode(&Mode{BaudRate: 1200}))
	_, err = follower.DataBits()
	requireCode(t, PortClosed, err)
	requireCode(t, PortClosed, follower.ResetInputBuffer())
}

func TestCloseStopsRead(t *testing.T) {
	_, follower := newTestPair(t)

	done := make(chan error, 1)
	go func() {
		_, err := follower.Read(make([]byte, 100))
		done <- err
	}()

	// let the Read start
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		require.Fail(t, "expected reading to be in-progress", "%v", err)
	default:
	}

	require.NoError(t, follower.Close())
	select {
	case err := <-done:
		requireCode(t, PortClosed, err)
	case <-time.After(time.Second):
		require.Fail(t, "expected reading to be done")
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("/nonexistent/ttyUSB42", nil)
	requireCode(t, PortNotFound, err)
	require.Equal(t, DeviceError, KindOf(err))

	// Not a terminal
	_, err = Open(os.DevNull, nil)
	requireCode(t, InvalidSerialPort, err)
	require.Equal(t, DeviceError, KindOf(err))

	_, err = Open(os.DevNull, &Mode{DataBits: 10})
	requireCode(t, InvalidDataBits, err)
}

func TestOpenByName(t *testing.T) {
	ptm, pts, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { ptm.Close(); pts.Close() })

	port, err := NewBuilder().
		BaudRate(115200).
		ReadTimeout(time.Second).
		Open(pts.Name())
	require.NoError(t, err)
	defer port.Close()
	require.Equal(t, pts.Name(), port.Name())

	_, err = ptm.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(port, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	if os.Geteuid() != 0 {
		// Exclusive access, root is allowed to bypass it
		_, err = Open(pts.Name(), nil)
		requireCode(t, PortBusy, err)
	}

	shared, err := NewBuilder().Exclusive(false).Open(pts.Name())
	if os.Geteuid() != 0 {
		requireCode(t, PortBusy, err)
	} else {
		require.NoError(t, err)
		require.NoError(t, shared.Close())
	}
}
