package codeplug

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCodeplug = `
radioWide:
  model: APX6000
isAnnounceZoneChannelTalkgroups: false
systems:
  - name: North
    address: 10.0.0.1
    port: 3000
    authKey: secret
  - name: South
    address: 10.0.0.2
    port: 3001
zones:
  - name: Zone 1
    channels:
      - name: Dispatch
        system: North
        tgid: 2001
        scanList: Ops
      - name: Tac 1
        system: North
        tgid: "2002"
      - name: Weather
        system: South
        tgid: 2003
        isReceiveOnly: true
  - name: Zone 2
    channels:
      - name: Fire
        system: South
        tgid: 3001
        scanList: Missing
scanLists:
  - name: Ops
    channels:
      - zone: Zone 1
        channel: Tac 1
      - zone: Zone 2
        channel: Fire
      - zone: Zone 9
        channel: Ghost
qcList:
  - a: 1000
    b: 2000
`

func parseSample(t *testing.T) *Codeplug {
	t.Helper()
	cp, err := Parse([]byte(sampleCodeplug))
	require.NoError(t, err)
	return cp
}

func TestParse(t *testing.T) {
	cp := parseSample(t)

	assert.Equal(t, "APX6000", cp.RadioWide.Model)
	require.Len(t, cp.Zones, 2)
	assert.Equal(t, "2001", cp.Zones[0].Channels[0].TGID, "numeric tgid decodes as text")
	assert.Equal(t, "2002", cp.Zones[0].Channels[1].TGID)
	assert.True(t, cp.Zones[0].Channels[2].ReceiveOnly)
	assert.Equal(t, []QCPair{{A: 1000, B: 2000}}, cp.QCList)

	sys, err := cp.SystemByName("North")
	require.NoError(t, err)
	assert.Equal(t, "secret", sys.AuthKey)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"no zones", "systems: []", ErrNoZones},
		{"empty zone", "zones:\n  - name: Z\n    channels: []", ErrNoZones},
		{
			"unknown system",
			"zones:\n  - name: Z\n    channels:\n      - name: C\n        system: Nope\n        tgid: 1",
			ErrSystemNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := Parse([]byte("zones: [:"))
	assert.Error(t, err, "malformed yaml")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeplug.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCodeplug), 0o644))

	cp, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cp.Systems, 2)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	cp := parseSample(t)

	tests := []struct {
		name        string
		from        Position
		zoneStep    int
		channelStep int
		want        Position
	}{
		{"next channel", Position{0, 0}, 0, 1, Position{0, 1}},
		{"channel wraps forward", Position{0, 2}, 0, 1, Position{0, 0}},
		{"channel wraps backward", Position{0, 0}, 0, -1, Position{0, 2}},
		{"zone resets channel", Position{0, 2}, 1, 0, Position{1, 0}},
		{"zone wraps forward", Position{1, 0}, 1, 0, Position{0, 0}},
		{"zone wraps backward", Position{0, 1}, -1, 0, Position{1, 0}},
		{"channel step past length", Position{0, 0}, 0, 4, Position{0, 1}},
		{"channel step back past length", Position{0, 0}, 0, -4, Position{0, 2}},
		{"zone step past length", Position{0, 2}, 3, 0, Position{1, 0}},
		{"zone step back past length", Position{1, 1}, -5, 0, Position{0, 0}},
		{"stale channel resets", Position{0, 7}, 0, 0, Position{0, 0}},
		{"stale zone resets", Position{4, 1}, 0, 0, Position{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cp.Wrap(tt.from, tt.zoneStep, tt.channelStep))
		})
	}
}

func TestAt(t *testing.T) {
	cp := parseSample(t)

	z, ch, ok := cp.At(Position{1, 0})
	require.True(t, ok)
	assert.Equal(t, "Zone 2", z.Name)
	assert.Equal(t, "Fire", ch.Name)

	_, _, ok = cp.At(Position{5, 0})
	assert.False(t, ok)
}

func TestScanManager(t *testing.T) {
	cp := parseSample(t)
	m := NewScanManager(cp)

	list, err := m.ScanListFor("Zone 1", "Dispatch")
	require.NoError(t, err)
	assert.Equal(t, "Ops", list.Name)

	assert.Equal(t, []string{"2002", "3001"}, m.TalkgroupsFor("Zone 1", "Dispatch"),
		"unresolvable members are skipped")

	assert.True(t, m.IsTalkgroupScanned("Zone 1", "Dispatch", "3001"))
	assert.False(t, m.IsTalkgroupScanned("Zone 1", "Dispatch", "2001"))
	assert.False(t, m.IsTalkgroupScanned("Zone 1", "Tac 1", "3001"))

	zone, channel, ok := m.Lookup("Zone 1", "Dispatch", "3001")
	require.True(t, ok)
	assert.Equal(t, "Zone 2", zone)
	assert.Equal(t, "Fire", channel)
}

func TestScanManager_NoScanList(t *testing.T) {
	m := NewScanManager(parseSample(t))

	_, err := m.ScanListFor("Zone 1", "Tac 1")
	assert.True(t, errors.Is(err, ErrNoScanList))

	_, err = m.ScanListFor("Zone 2", "Fire")
	assert.True(t, errors.Is(err, ErrNoScanList), "dangling list name behaves as no list")

	assert.Empty(t, m.TalkgroupsFor("Zone 2", "Fire"))
	assert.Empty(t, NewScanManager(nil).TalkgroupsFor("Zone 1", "Dispatch"))
}
