//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package serialport_test

import (
	"fmt"
	"log"
	"time"

	"github.com/abakum/serialport"
)

// This example opens a port, sends a command and prints the reply until
// the line stays quiet for 100ms.
func ExampleBuilder() {
	port, err := serialport.NewBuilder().
		BaudRate(115200).
		DataBits(8).
		Parity(serialport.NoParity).
		StopBits(serialport.OneStopBit).
		ReadTimeout(100 * time.Millisecond).
		Open("/dev/ttyUSB0")
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	if _, err := port.Write([]byte("10,20,30\n\r")); err != nil {
		log.Fatal(err)
	}

	buff := make([]byte, 100)
	for {
		n, err := port.Read(buff)
		if serialport.IsTimeout(err) {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s", buff[:n])
	}
}

func ExamplePair() {
	controller, follower, err := serialport.Pair()
	if err != nil {
		log.Fatal(err)
	}
	defer follower.Close()
	defer controller.Close()

	if _, err := controller.Write([]byte("ping")); err != nil {
		log.Fatal(err)
	}
	buff := make([]byte, 4)
	if err := follower.SetReadTimeout(time.Second); err != nil {
		log.Fatal(err)
	}
	n, err := follower.Read(buff)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s received on %s\n", buff[:n], follower.Name())
}
