//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

// portrecv reads data from a serial port and echoes it to stdout:
//
// $ go run ./portrecv /dev/ttyUSB0 115200
// Receiving data on /dev/ttyUSB0 at 115200 baud:
// ...
//
// Settings may also come from PORTRECV_* environment variables or from a
// configuration file passed with --config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/abakum/serialport"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// pause after a read error, so a broken device does not spin the loop
const errorBackoff = 100 * time.Millisecond

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadConfig(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Sync()

	port, err := serialport.NewBuilder().
		BaudRate(cfg.Baud).
		ReadTimeout(cfg.Timeout).
		WriteTimeout(cfg.Timeout).
		Open(cfg.Port)
	if err != nil {
		logger.Error("failed to open port",
			zap.String("port", cfg.Port),
			zap.Int("baud", cfg.Baud),
			zap.Stringer("kind", serialport.KindOf(err)),
			zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to open \"%s\". Error: %v\n", cfg.Port, err)
		return 1
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		// Wakes up the pending Read
		port.Close()
	}()

	fmt.Printf("Receiving data on %s at %d baud:\n", cfg.Port, cfg.Baud)
	logger.Info("receiving", zap.String("port", cfg.Port), zap.Int("baud", cfg.Baud), zap.Duration("timeout", cfg.Timeout))
	if err := receive(port, os.Stdout, logger); err != nil {
		logger.Error("receive failed", zap.Error(err))
		return 1
	}
	return 0
}

// receive copies everything read from port to out until the port is
// closed. Timeouts are expected and ignored, other read errors are logged.
func receive(port io.Reader, out io.Writer, logger *zap.Logger) error {
	buf := make([]byte, 1000)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write output: %w", werr)
			}
		}
		var portErr *serialport.PortError
		switch {
		case err == nil, serialport.IsTimeout(err):
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &portErr) && portErr.Code() == serialport.PortClosed:
			return nil
		default:
			logger.Warn("read failed", zap.Error(err))
			time.Sleep(errorBackoff)
		}
	}
}
