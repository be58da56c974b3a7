package codeplug

import "fmt"

// ScanTarget is one resolved scan list member
type ScanTarget struct {
	Zone    string
	Channel string
	TGID    string
}

// ScanManager is an immutable view of the codeplug's scan lists, keyed by
// the channel they are attached to. Build a new one whenever the codeplug
// changes.
type ScanManager struct {
	lists   map[string]ScanList
	names   map[channelKey]string
	targets map[channelKey][]ScanTarget
}

type channelKey struct {
	zone    string
	channel string
}

// NewScanManager resolves every channel's scan list against the codeplug.
// Entries naming a zone or channel that does not exist are skipped.
func NewScanManager(cp *Codeplug) *ScanManager {
	m := &ScanManager{
		lists:   make(map[string]ScanList),
		names:   make(map[channelKey]string),
		targets: make(map[channelKey][]ScanTarget),
	}
	if cp == nil {
		return m
	}

	for _, l := range cp.ScanLists {
		m.lists[l.Name] = l
	}

	for _, z := range cp.Zones {
		for _, ch := range z.Channels {
			if ch.ScanList == "" {
				continue
			}
			list, ok := m.lists[ch.ScanList]
			if !ok {
				continue
			}
			var targets []ScanTarget
			for _, e := range list.Channels {
				member, ok := cp.FindChannel(e.Zone, e.Channel)
				if !ok {
					continue
				}
				targets = append(targets, ScanTarget{Zone: e.Zone, Channel: e.Channel, TGID: member.TGID})
			}
			key := channelKey{z.Name, ch.Name}
			m.names[key] = list.Name
			m.targets[key] = targets
		}
	}
	return m
}

// ScanListFor returns the scan list attached to a channel
func (m *ScanManager) ScanListFor(zone, channel string) (ScanList, error) {
	name, ok := m.names[channelKey{zone, channel}]
	if !ok {
		return ScanList{}, fmt.Errorf("%w: %s/%s", ErrNoScanList, zone, channel)
	}
	return m.lists[name], nil
}

// Targets returns the resolved members of a channel's scan list
func (m *ScanManager) Targets(zone, channel string) []ScanTarget {
	return m.targets[channelKey{zone, channel}]
}

// TalkgroupsFor returns the talkgroups scanned while on a channel
func (m *ScanManager) TalkgroupsFor(zone, channel string) []string {
	targets := m.targets[channelKey{zone, channel}]
	tgs := make([]string, 0, len(targets))
	for _, t := range targets {
		tgs = append(tgs, t.TGID)
	}
	return tgs
}

// IsTalkgroupScanned reports whether tg is in the scan list of a channel
func (m *ScanManager) IsTalkgroupScanned(zone, channel, tg string) bool {
	_, _, ok := m.Lookup(zone, channel, tg)
	return ok
}

// Lookup finds the zone and channel labels of the first scan list member
// carrying tg
func (m *ScanManager) Lookup(zone, channel, tg string) (string, string, bool) {
	for _, t := range m.targets[channelKey{zone, channel}] {
		if t.TGID == tg {
			return t.Zone, t.Channel, true
		}
	}
	return "", "", false
}
