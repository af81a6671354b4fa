//
// Copyright 2014-2017 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport

//go:generate go run golang.org/x/sys/windows/mkwinsyscall -output zsyscall_windows.go syscall_windows.go

type comstat struct {
	/* typedef struct _COMSTAT {
	    DWORD fCtsHold  :1;
	    DWORD fDsrHold  :1;
	    DWORD fRlsdHold  :1;
	    DWORD fXoffHold  :1;
	    DWORD fXoffSent  :1;
	    DWORD fEof  :1;
	    DWORD fTxim  :1;
	    DWORD fReserved  :25;
	    DWORD cbInQue;
	    DWORD cbOutQue;
	} COMSTAT, *LPCOMSTAT; */
	flags  uint32
	inque  uint32
	outque uint32
}

//sys clearCommError(handle windows.Handle, lpErrors *uint32, lpStat *comstat) (err error) = ClearCommError

const (
	dcbBinary                uint32 = 0x00000001
	dcbParity                uint32 = 0x00000002
	dcbOutXCTSFlow           uint32 = 0x00000004
	dcbOutXDSRFlow           uint32 = 0x00000008
	dcbDTRControlDisableMask uint32 = ^uint32(0x00000030)
	dcbDTRControlEnable      uint32 = 0x00000010
	dcbDSRSensitivity        uint32 = 0x00000040
	dcbTXContinueOnXOFF      uint32 = 0x00000080
	dcbOutX                  uint32 = 0x00000100
	dcbInX                   uint32 = 0x00000200
	dcbErrorChar             uint32 = 0x00000400
	dcbNull                  uint32 = 0x00000800
	dcbRTSControlDisableMask uint32 = ^uint32(0x00003000)
	dcbRTSControlEnable      uint32 = 0x00001000
	dcbRTSControlHandshake   uint32 = 0x00002000
	dcbAbortOnError          uint32 = 0x00004000
)

type dcb struct {
	DCBlength uint32
	BaudRate  uint32

	// Flags field is a bitfield
	//  fBinary            :1
	//  fParity            :1
	//  fOutxCtsFlow       :1
	//  fOutxDsrFlow       :1
	//  fDtrControl        :2
	//  fDsrSensitivity    :1
	//  fTXContinueOnXoff  :1
	//  fOutX              :1
	//  fInX               :1
	//  fErrorChar         :1
	//  fNull              :1
	//  fRtsControl        :2
	//  fAbortOnError      :1
	//  fDummy2            :17
	Flags uint32

	wReserved  uint16
	XonLim     uint16
	XoffLim    uint16
	ByteSize   byte
	Parity     byte
	StopBits   byte
	XonChar    byte
	XoffChar   byte
	ErrorChar  byte
	EOFChar    byte
	EvtChar    byte
	wReserved1 uint16
}

//sys getCommState(handle windows.Handle, dcb *dcb) (err error) = GetCommState

//sys setCommState(handle windows.Handle, dcb *dcb) (err error) = SetCommState

type commTimeouts struct {
	ReadIntervalTimeout         uint32
	ReadTotalTimeoutMultiplier  uint32
	ReadTotalTimeoutConstant    uint32
	WriteTotalTimeoutMultiplier uint32
	WriteTotalTimeoutConstant   uint32
}

//sys setCommTimeouts(handle windows.Handle, timeouts *commTimeouts) (err error) = SetCommTimeouts

const (
	commFunctionSetRTS   = 3
	commFunctionClrRTS   = 4
	commFunctionSetDTR   = 5
	commFunctionClrDTR   = 6
	commFunctionSetBreak = 8
	commFunctionClrBreak = 9
)

//sys escapeCommFunction(handle windows.Handle, function uint32) (err error) = EscapeCommFunction

const (
	msCTSOn  = 0x0010
	msDSROn  = 0x0020
	msRingOn = 0x0040
	msRLSDOn = 0x0080
)

//sys getCommModemStatus(handle windows.Handle, bits *uint32) (err error) = GetCommModemStatus

const (
	purgeRxAbort uint32 = 0x0002
	purgeRxClear uint32 = 0x0008
	purgeTxAbort uint32 = 0x0001
	purgeTxClear uint32 = 0x0004
)

//sys purgeComm(handle windows.Handle, flags uint32) (err error) = PurgeComm
