// Package cniconfig parses and validates the plugin's stdin configuration
// document (spec §3 CniConfig, §6 Configuration JSON).
package cniconfig

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/ohno-cni/ohno/pkg/cnierror"
)

// Separator is the list/token separator used throughout the KV schema.
const Separator = ","

// RouteSeparator is the separator used inside the encoded route value
// (dest-via-dev); bridge names must not contain it since the bridge name
// can appear as a route's dev field.
const RouteSeparator = "-"

// Mode is a dataplane mode.
type Mode string

const (
	ModeHostGW Mode = "host-gw"
	ModeVXLAN  Mode = "vxlan"
	ModeEVPN   Mode = "evpn"
)

// IPAMBlock is the "ipam" stanza of the configuration JSON.
type IPAMBlock struct {
	Subnet string `json:"subnet"`
	Mode   Mode   `json:"mode"`
}

// Config is the parsed, validated plugin configuration (CniConfig).
type Config struct {
	CNIVersion string    `json:"cniVersion"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Bridge     string    `json:"bridge"`
	Log        string    `json:"log"`
	LogLevel   string    `json:"logLevel"`
	SSL        bool      `json:"ssl"`
	IPAM       IPAMBlock `json:"ipam"`

	SubnetNet *net.IPNet `json:"-"`
}

// Default returns the configuration written by --get-conf.
func Default() *Config {
	return &Config{
		CNIVersion: "0.3.1",
		Name:       "mynet",
		Type:       "ohno",
		Bridge:     "ohnobr",
		Log:        "/var/run/log/ohno.log",
		LogLevel:   "info",
		SSL:        true,
		IPAM: IPAMBlock{
			Subnet: "10.244.0.0/16",
			Mode:   ModeHostGW,
		},
	}
}

// Parse decodes and validates the stdin configuration document.
func Parse(stdin []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(stdin, cfg); err != nil {
		return nil, cnierror.New("", cnierror.CodeDecode, "failed to decode config", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Bridge == "" {
		return cnierror.New(c.CNIVersion, cnierror.CodeNetwork, "invalid config", "bridge is required")
	}
	if strings.Contains(c.Bridge, RouteSeparator) {
		return cnierror.New(c.CNIVersion, cnierror.CodeNetwork, "invalid bridge name",
			fmt.Sprintf("bridge name %q must not contain the separator character %q", c.Bridge, RouteSeparator))
	}
	switch c.IPAM.Mode {
	case ModeHostGW, ModeVXLAN, ModeEVPN:
	default:
		return cnierror.New(c.CNIVersion, cnierror.CodeNetwork, "invalid ipam mode",
			fmt.Sprintf("mode %q must be one of host-gw, vxlan, evpn", c.IPAM.Mode))
	}

	_, subnetNet, err := net.ParseCIDR(c.IPAM.Subnet)
	if err != nil {
		return cnierror.New(c.CNIVersion, cnierror.CodeNetwork, "invalid ipam subnet", err.Error())
	}
	if subnetNet.IP.To4() == nil {
		return cnierror.New(c.CNIVersion, cnierror.CodeNetwork, "invalid ipam subnet", "only IPv4 is supported")
	}
	c.SubnetNet = subnetNet
	return nil
}
