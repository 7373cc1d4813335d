// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the toml files the binaries run from. Missing
// files are fine, the defaults stand in.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"qwire/protocol"
)

type Client struct {
	// Server is the host:port to connect to.
	Server string `toml:"server"`
	QPort  uint16 `toml:"qport"`

	Name        string `toml:"name"`
	TopColor    int    `toml:"topcolor"`
	BottomColor int    `toml:"bottomcolor"`
	Rate        int    `toml:"rate"`

	// TickHz paces the send loop.
	TickHz     int `toml:"tick_hz"`
	RetryTicks int `toml:"retry_ticks"`
	RetryLimit int `toml:"retry_limit"`
}

func DefaultClient() Client {
	return Client{
		Server:      "localhost:27500",
		QPort:       uint16(os.Getpid() & 0xffff),
		Name:        "player",
		TopColor:    0,
		BottomColor: 0,
		Rate:        2500,
		TickHz:      72,
		RetryTicks:  72,
		RetryLimit:  3,
	}
}

type Server struct {
	Port       int    `toml:"port"`
	HostName   string `toml:"hostname"`
	GameDir    string `toml:"gamedir"`
	Map        string `toml:"map"`
	MaxClients int    `toml:"maxclients"`
	TickHz     int    `toml:"tick_hz"`

	// MetricsAddr exposes prometheus when set, e.g. ":9100".
	MetricsAddr string `toml:"metrics_addr"`

	Sounds []string `toml:"sounds"`
	Models []string `toml:"models"`
}

func DefaultServer() Server {
	return Server{
		Port:       protocol.PortServer,
		HostName:   "unnamed",
		GameDir:    "qw",
		Map:        "dm4",
		MaxClients: 16,
		TickHz:     20,
	}
}

// LoadClient reads path over the defaults. An empty path or a missing
// file returns the defaults unchanged.
func LoadClient(path string) (Client, error) {
	c := DefaultClient()
	err := load(path, &c)
	return c, err
}

func LoadServer(path string) (Server, error) {
	s := DefaultServer()
	err := load(path, &s)
	return s, err
}

func load(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, v); err != nil {
		return errors.Wrapf(err, "config %s", path)
	}
	return nil
}
