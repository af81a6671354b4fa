//
// Copyright 2014-2024 Cristian Maglie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PORTRECV"

type config struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
	Log     logConfig     `mapstructure:"log"`
}

type logConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// loadConfig merges, from lowest to highest priority: defaults, the
// optional config file, PORTRECV_* environment variables, flags and the
// positional port and baud arguments.
func loadConfig(args []string, usage io.Writer) (*config, error) {
	fs := pflag.NewFlagSet("portrecv", pflag.ContinueOnError)
	fs.SetOutput(usage)
	fs.Usage = func() {
		fmt.Fprintln(usage, "Reads data from a serial port and echoes it to stdout")
		fmt.Fprintln(usage)
		fmt.Fprintln(usage, "Usage: portrecv [flags] <port> <baud>")
		fs.PrintDefaults()
	}
	fs.Duration("timeout", 10*time.Millisecond, "read and write timeout")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console or json)")
	fs.String("log-file", "", "log to a rotated file instead of stderr")
	configFile := fs.String("config", "", "optional configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("port", "")
	v.SetDefault("baud", 0)
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	for key, flag := range map[string]string{
		"timeout":    "timeout",
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	positional := fs.Args()
	if len(positional) > 2 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(positional[2:], " "))
	}
	if len(positional) > 0 {
		v.Set("port", positional[0])
	}
	if len(positional) > 1 {
		baud, err := strconv.Atoi(positional[1])
		if err != nil {
			return nil, fmt.Errorf("invalid baud rate '%s' specified", positional[1])
		}
		v.Set("baud", baud)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("the device path to a serial port is required")
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate '%d' specified", cfg.Baud)
	}
	return &cfg, nil
}
