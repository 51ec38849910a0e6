package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

// settings are the connection parameters shared by every command.
type settings struct {
	URI           string
	Login         string
	Passcode      string
	Host          string
	HeartBeat     string
	AcceptVersion string
	MetricsAddr   string
}

type fileConfig struct {
	URI           string `toml:"uri"`
	Login         string `toml:"login"`
	Passcode      string `toml:"passcode"`
	Host          string `toml:"host"`
	HeartBeat     string `toml:"heart_beat"`
	AcceptVersion string `toml:"accept_version"`
	MetricsAddr   string `toml:"metrics_addr"`
}

func defaultSettings() settings {
	return settings{
		URI:           "tcp://localhost:" + stomp.DefaultPort,
		HeartBeat:     "5000,5000",
		AcceptVersion: stomp.DefaultAcceptVersion,
	}
}

// loadSettings overlays the keys present in the TOML file at path on the
// defaults. An empty path yields the defaults.
func loadSettings(path string) (settings, error) {
	cfg := defaultSettings()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return settings{}, errors.Wrap(err, "load stompcat config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return settings{}, errors.Errorf("load stompcat config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("uri") {
		cfg.URI = strings.TrimSpace(raw.URI)
	}
	if meta.IsDefined("login") {
		cfg.Login = raw.Login
	}
	if meta.IsDefined("passcode") {
		cfg.Passcode = raw.Passcode
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("heart_beat") {
		cfg.HeartBeat = strings.TrimSpace(raw.HeartBeat)
	}
	if meta.IsDefined("accept_version") {
		cfg.AcceptVersion = strings.TrimSpace(raw.AcceptVersion)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, cfg.validate()
}

// override applies command-line values on top of the file settings.
func (cfg *settings) override(flags Globals) error {
	for _, pair := range []struct {
		value  string
		target *string
	}{
		{flags.URI, &cfg.URI},
		{flags.Login, &cfg.Login},
		{flags.Passcode, &cfg.Passcode},
		{flags.Host, &cfg.Host},
		{flags.HeartBeat, &cfg.HeartBeat},
		{flags.AcceptVersion, &cfg.AcceptVersion},
		{flags.MetricsAddr, &cfg.MetricsAddr},
	} {
		if pair.value != "" {
			*pair.target = pair.value
		}
	}
	return cfg.validate()
}

func (cfg settings) validate() error {
	if cfg.URI == "" {
		return errors.New("broker uri is required")
	}
	if cfg.HeartBeat != "" {
		if _, _, err := stomp.ParseHeartBeat(cfg.HeartBeat); err != nil {
			return errors.Wrap(err, "heart-beat")
		}
	}
	return nil
}

// connectHeaders builds the CONNECT headers. Empty settings are left to the
// session defaults.
func (cfg settings) connectHeaders() stomp.Headers {
	headers := stomp.NewHeaders()
	for _, pair := range [][2]string{
		{stomp.HeaderAcceptVersion, cfg.AcceptVersion},
		{stomp.HeaderHost, cfg.Host},
		{stomp.HeaderLogin, cfg.Login},
		{stomp.HeaderPasscode, cfg.Passcode},
		{stomp.HeaderHeartBeat, cfg.HeartBeat},
	} {
		if pair[1] != "" {
			headers.Set(pair[0], pair[1])
		}
	}
	return headers
}
