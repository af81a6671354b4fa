//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport_test

import (
	"fmt"
	"log"

	"github.com/abakum/serialport"
)

func ExamplePort_SetMode() {
	port, err := serialport.Open("/dev/ttyACM0", &serialport.Mode{})
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	mode := &serialport.Mode{}
	if err := serialport.ModeFromString("9600_8N1", mode); err != nil {
		log.Fatal(err)
	}
	if err := port.SetMode(mode); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Port set to", mode)
}

func ExamplePort_SetBaudRate() {
	port, err := serialport.NewBuilder().Open("/dev/ttyUSB0")
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	// Rates outside the termios table go through the driver custom path
	err = port.SetBaudRate(250000)
	if serialport.KindOf(err) == serialport.UnsupportedRate {
		log.Fatal("the driver does not accept 250000 baud")
	} else if err != nil {
		log.Fatal(err)
	}
	speed, err := port.BaudRate()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Port speed:", speed)
}
