package main

import (
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dcd-mail/mailspool/server"
)

// defaultUsers is the compiled-in credential table, mirroring the
// source's hardcoded account list. A config file's [[users]] entries
// are appended to, not substituted for, this table.
var defaultUsers = []server.UserRec{
	{Name: "dcd", Password: "password"},
	{Name: "vj", Password: "password"},
}

type tomlServerSection struct {
	StorageBase string `toml:"storage_base"`
	SMTPAddr    string `toml:"smtp_addr"`
	IMAPAddr    string `toml:"imap_addr"`
	POP3Addr    string `toml:"pop3_addr"`
	MetricsAddr string `toml:"metrics_addr"`
	DNSServer   string `toml:"dns_server"`
	SMTPTimeout string `toml:"smtp_timeout"`
	IMAPTimeout string `toml:"imap_timeout"`
	POP3Timeout string `toml:"pop3_timeout"`
}

type tomlUser struct {
	Name     string `toml:"name"`
	Password string `toml:"password"`
	PwHash   string `toml:"pwhash"`
}

type tomlFile struct {
	Server tomlServerSection `toml:"server"`
	Users  []tomlUser        `toml:"users"`
}

// loadConfig builds a server.Config from the two mandatory positional
// arguments, the compiled-in user table and ports, and an optional
// TOML file layered on top.
func loadConfig(domain string, maxWorkers int, configPath string) (*server.Config, error) {
	cfg := &server.Config{
		Domain:      domain,
		MaxWorkers:  maxWorkers,
		StorageBase: "storage",
		SMTPAddr:    portAddr(server.SMTPPort),
		IMAPAddr:    portAddr(server.IMAPPort),
		POP3Addr:    portAddr(server.POP3Port),
		SMTPTimeout: 5 * time.Minute,
		IMAPTimeout: 30 * time.Minute,
		POP3Timeout: 10 * time.Minute,
		Users:       append([]server.UserRec{}, defaultUsers...),
	}

	if configPath == "" {
		return cfg, nil
	}

	var f tomlFile
	if _, err := toml.DecodeFile(configPath, &f); err != nil {
		return nil, err
	}

	if f.Server.StorageBase != "" {
		cfg.StorageBase = f.Server.StorageBase
	}
	if f.Server.SMTPAddr != "" {
		cfg.SMTPAddr = f.Server.SMTPAddr
	}
	if f.Server.IMAPAddr != "" {
		cfg.IMAPAddr = f.Server.IMAPAddr
	}
	if f.Server.POP3Addr != "" {
		cfg.POP3Addr = f.Server.POP3Addr
	}
	if f.Server.MetricsAddr != "" {
		cfg.MetricsAddr = f.Server.MetricsAddr
	}
	if f.Server.DNSServer != "" {
		cfg.DNSServer = f.Server.DNSServer
	}
	if d, err := parseDuration(f.Server.SMTPTimeout, cfg.SMTPTimeout); err == nil {
		cfg.SMTPTimeout = d
	}
	if d, err := parseDuration(f.Server.IMAPTimeout, cfg.IMAPTimeout); err == nil {
		cfg.IMAPTimeout = d
	}
	if d, err := parseDuration(f.Server.POP3Timeout, cfg.POP3Timeout); err == nil {
		cfg.POP3Timeout = d
	}

	for _, u := range f.Users {
		cfg.Users = append(cfg.Users, server.UserRec{
			Name:     u.Name,
			Password: u.Password,
			PwHash:   u.PwHash,
		})
	}

	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
