// Package codeplug holds the radio's programming: zones, channels, the
// systems they connect to, scan lists and the QC2 page table.
package codeplug

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrSystemNotFound is returned when a channel names an unknown system
	ErrSystemNotFound = errors.New("system not found")
	// ErrNoScanList is returned when a channel has no usable scan list
	ErrNoScanList = errors.New("no scan list for channel")
	// ErrNoZones is returned for a codeplug with no zones or an empty zone
	ErrNoZones = errors.New("codeplug has no zones")
)

// Codeplug is the YAML programming file
type Codeplug struct {
	RadioWide                     RadioWide  `yaml:"radioWide"`
	Zones                         []Zone     `yaml:"zones"`
	ScanLists                     []ScanList `yaml:"scanLists"`
	Systems                       []System   `yaml:"systems"`
	QCList                        []QCPair   `yaml:"qcList"`
	AnnounceZoneChannelTalkgroups bool       `yaml:"isAnnounceZoneChannelTalkgroups"`
}

// RadioWide holds settings that apply to every zone
type RadioWide struct {
	Model string `yaml:"model"`
	Alias string `yaml:"alias,omitempty"`
}

// Zone is an ordered group of channels
type Zone struct {
	Name         string    `yaml:"name"`
	NameAnnounce string    `yaml:"name_announce,omitempty"`
	Channels     []Channel `yaml:"channels"`
}

// Channel binds a display name to a talkgroup on a system
type Channel struct {
	Name         string `yaml:"name"`
	NameAnnounce string `yaml:"name_announce,omitempty"`
	System       string `yaml:"system"`
	TGID         string `yaml:"tgid"`
	ScanList     string `yaml:"scanList,omitempty"`
	ReceiveOnly  bool   `yaml:"isReceiveOnly,omitempty"`
}

// ScanList is a named set of zone/channel references
type ScanList struct {
	Name     string          `yaml:"name"`
	Channels []ScanListEntry `yaml:"channels"`
}

// ScanListEntry references a channel by zone and channel name
type ScanListEntry struct {
	Zone    string `yaml:"zone"`
	Channel string `yaml:"channel"`
}

// System is a master the radio can connect to
type System struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	AuthKey string `yaml:"authKey,omitempty"`
}

// QCPair is a QC2 two-tone page (A and B tone frequencies in Hz)
type QCPair struct {
	A int `yaml:"a"`
	B int `yaml:"b"`
}

// Load reads and validates a codeplug file
func Load(path string) (*Codeplug, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read codeplug: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML codeplug
func Parse(data []byte) (*Codeplug, error) {
	var cp Codeplug
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse codeplug: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Validate checks that every zone has channels and every channel points
// at a known system
func (cp *Codeplug) Validate() error {
	if len(cp.Zones) == 0 {
		return ErrNoZones
	}
	for _, z := range cp.Zones {
		if len(z.Channels) == 0 {
			return fmt.Errorf("zone %q: %w", z.Name, ErrNoZones)
		}
		for _, ch := range z.Channels {
			if ch.TGID == "" {
				return fmt.Errorf("zone %q channel %q: missing tgid", z.Name, ch.Name)
			}
			if _, err := cp.SystemByName(ch.System); err != nil {
				return fmt.Errorf("zone %q channel %q: %w", z.Name, ch.Name, err)
			}
		}
	}
	for _, s := range cp.Systems {
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("system %q: port must be between 1 and 65535", s.Name)
		}
	}
	return nil
}

// SystemByName finds a system definition
func (cp *Codeplug) SystemByName(name string) (System, error) {
	for _, s := range cp.Systems {
		if s.Name == name {
			return s, nil
		}
	}
	return System{}, fmt.Errorf("%w: %q", ErrSystemNotFound, name)
}

// Position is a zone/channel index pair
type Position struct {
	Zone    int
	Channel int
}

// Wrap moves pos by the given zone and channel steps, wrapping at both
// ends. A zone change resets the channel to the first entry.
func (cp *Codeplug) Wrap(pos Position, zoneStep, channelStep int) Position {
	if len(cp.Zones) == 0 {
		return Position{}
	}
	if zoneStep != 0 {
		pos.Zone = wrapIndex(pos.Zone+zoneStep, len(cp.Zones))
		pos.Channel = 0
	} else {
		pos.Zone = clampIndex(pos.Zone, len(cp.Zones))
	}
	n := len(cp.Zones[pos.Zone].Channels)
	if n == 0 {
		pos.Channel = 0
		return pos
	}
	if channelStep != 0 {
		pos.Channel = wrapIndex(pos.Channel+channelStep, n)
	} else {
		pos.Channel = clampIndex(pos.Channel, n)
	}
	return pos
}

// wrapIndex reduces i into [0, n) for steps of any size.
func wrapIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i % n) + n) % n
}

// clampIndex resets a position left out of range by a codeplug reload.
func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// At returns the zone and channel at pos. The caller must have wrapped
// pos against this codeplug.
func (cp *Codeplug) At(pos Position) (Zone, Channel, bool) {
	if pos.Zone < 0 || pos.Zone >= len(cp.Zones) {
		return Zone{}, Channel{}, false
	}
	z := cp.Zones[pos.Zone]
	if pos.Channel < 0 || pos.Channel >= len(z.Channels) {
		return z, Channel{}, false
	}
	return z, z.Channels[pos.Channel], true
}

// FindChannel looks up a channel by zone and channel name
func (cp *Codeplug) FindChannel(zone, channel string) (Channel, bool) {
	for _, z := range cp.Zones {
		if z.Name != zone {
			continue
		}
		for _, ch := range z.Channels {
			if ch.Name == channel {
				return ch, true
			}
		}
	}
	return Channel{}, false
}
