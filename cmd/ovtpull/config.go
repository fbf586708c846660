package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the demo's per-stream configuration
// file: a flat list of OVT origins to pull from, loaded once at startup.
type fileConfig struct {
	Streams []streamConfig `yaml:"streams"`
}

type streamConfig struct {
	Name              string   `yaml:"name"`
	URLs              []string `yaml:"urls"`
	ConnectTimeoutMS  int      `yaml:"connect_timeout_ms"`
	RecvTimeoutMS     int      `yaml:"recv_timeout_ms"`
	MaxPacketSize     int      `yaml:"max_packet_size"`
	MaxInFlightFrames int      `yaml:"max_in_flight_frames"`
}

func (s streamConfig) connectTimeout() time.Duration {
	if s.ConnectTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}

func (s streamConfig) recvTimeout() time.Duration {
	if s.RecvTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(s.RecvTimeoutMS) * time.Millisecond
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Streams) == 0 {
		return nil, fmt.Errorf("config %s: no streams configured", path)
	}
	for i, s := range cfg.Streams {
		if s.Name == "" {
			return nil, fmt.Errorf("config %s: stream %d missing name", path, i)
		}
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("config %s: stream %q has no urls", path, s.Name)
		}
	}
	return &cfg, nil
}
