// Package config implements the persisted configuration blob and its
// human-edited bootstrap defaults (§3, §6, §9, SPEC_FULL §4.13): a
// fixed-layout binary blob checksummed with Fletcher-16, loaded on boot
// and written atomically on every change, falling back to a YAML seed
// file (or hardcoded minimal defaults) whenever the blob is absent or
// fails validation.
//
// Field order and widths follow §6's documented layout exactly —
// `{magic: u32, version: u8, pad, lat_e4: i32, lon_e4: i32, tz_hours: i32,
// honor_dst: u8, rtc_set_epoch: u32, door_travel_ms: u16, lock_pulse_ms:
// u16, door_settle_ms: u16, lock_settle_ms: u16, pad, events[MAX_EVENTS],
// checksum: u16}` — since §9 requires field-by-field serialization in the
// documented order to preserve compatibility with existing stored blobs,
// not merely "a" binary encoding.
//
// The atomic temp-file-then-rename write is the same pattern the
// teacher's internal/store and internal/state packages use for their
// JSON state files, generalized here to a fixed-layout binary encoding.
package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"

	"github.com/thatsimonsguy/coopd/internal/fletcher16"
	"github.com/thatsimonsguy/coopd/internal/model"
	"gopkg.in/yaml.v3"
)

const (
	magic          uint32 = 0x434F4F50 // "COOP"
	currentVersion uint8  = 2
)

// Config is the persisted configuration blob (§3, §6). Latitude/Longitude
// are signed integers scaled x10^4 (degrees x10000); TZHours/HonorDST are
// presentation-only for the console and MUST NOT influence scheduling.
// Mechanical timing fields are milliseconds, stored as u16 on the wire
// per §6 (max ~65s, comfortably above any real door/lock timing).
type Config struct {
	LatitudeE4  int32
	LongitudeE4 int32

	TZHours  int32
	HonorDST bool

	RTCSetEpoch uint32

	DoorTravelMs uint16
	LockPulseMs  uint16
	DoorSettleMs uint16
	LockSettleMs uint16

	Events [model.MaxEvents]model.Event
}

// BootstrapDefaults is the human-edited YAML seed read only when the blob
// is absent or fails validation. Fields are in the units a human would
// type them, not the wire-scaled integers.
type BootstrapDefaults struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	TZHours   int32   `yaml:"tz_hours"`
	HonorDST  bool    `yaml:"honor_dst"`

	DoorTravelMs uint16 `yaml:"door_travel_ms"`
	LockPulseMs  uint16 `yaml:"lock_pulse_ms"`
	DoorSettleMs uint16 `yaml:"door_settle_ms"`
	LockSettleMs uint16 `yaml:"lock_settle_ms"`
}

// DefaultBootstrap is the hardcoded fallback used when both the blob and
// the YAML bootstrap file are absent or unreadable.
func DefaultBootstrap() BootstrapDefaults {
	return BootstrapDefaults{
		Latitude: 0, Longitude: 0, TZHours: 0, HonorDST: false,
		DoorTravelMs: 8000, LockPulseMs: 750, DoorSettleMs: 500, LockSettleMs: 750,
	}
}

// FromBootstrap converts human-units bootstrap defaults into a Config,
// with an empty event table.
func FromBootstrap(b BootstrapDefaults) Config {
	return Config{
		LatitudeE4:   int32(b.Latitude * 1e4),
		LongitudeE4:  int32(b.Longitude * 1e4),
		TZHours:      b.TZHours,
		HonorDST:     b.HonorDST,
		DoorTravelMs: b.DoorTravelMs,
		LockPulseMs:  b.LockPulseMs,
		DoorSettleMs: b.DoorSettleMs,
		LockSettleMs: b.LockSettleMs,
	}
}

// ErrInvalidBlob is returned by Decode on any magic/version/checksum
// mismatch.
var ErrInvalidBlob = errors.New("config: blob failed magic/version/checksum validation")

// Encode serializes cfg into the §6 wire layout: magic, version, and a
// one-byte pad first, then the scalar fields, the event table, and a
// trailing Fletcher-16 checksum over every preceding byte.
func Encode(cfg Config) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, magic)
	binary.Write(&buf, binary.BigEndian, currentVersion)
	binary.Write(&buf, binary.BigEndian, uint8(0)) // pad, per §6 layout
	binary.Write(&buf, binary.BigEndian, cfg.LatitudeE4)
	binary.Write(&buf, binary.BigEndian, cfg.LongitudeE4)
	binary.Write(&buf, binary.BigEndian, cfg.TZHours)
	binary.Write(&buf, binary.BigEndian, boolToU8(cfg.HonorDST))
	binary.Write(&buf, binary.BigEndian, cfg.RTCSetEpoch)
	binary.Write(&buf, binary.BigEndian, cfg.DoorTravelMs)
	binary.Write(&buf, binary.BigEndian, cfg.LockPulseMs)
	binary.Write(&buf, binary.BigEndian, cfg.DoorSettleMs)
	binary.Write(&buf, binary.BigEndian, cfg.LockSettleMs)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // pad, per §6 layout
	for _, ev := range cfg.Events {
		binary.Write(&buf, binary.BigEndian, ev.Refnum)
		binary.Write(&buf, binary.BigEndian, uint8(ev.DeviceID))
		binary.Write(&buf, binary.BigEndian, uint8(ev.Action))
		binary.Write(&buf, binary.BigEndian, uint8(ev.When.Ref))
		binary.Write(&buf, binary.BigEndian, ev.When.OffsetMinutes)
	}

	sum := fletcher16.Sum(buf.Bytes())
	binary.Write(&buf, binary.BigEndian, sum)
	return buf.Bytes()
}

// Decode parses a blob produced by Encode, validating magic, version, and
// checksum. Returns ErrInvalidBlob on any mismatch.
func Decode(data []byte) (Config, error) {
	var cfg Config
	if len(data) < 6 {
		return cfg, ErrInvalidBlob
	}

	body := data[:len(data)-2]
	wantSum := binary.BigEndian.Uint16(data[len(data)-2:])
	if fletcher16.Sum(body) != wantSum {
		return cfg, ErrInvalidBlob
	}

	r := bytes.NewReader(body)
	var gotMagic uint32
	var gotVersion, pad8 uint8
	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return cfg, ErrInvalidBlob
	}
	binary.Read(r, binary.BigEndian, &gotVersion)
	binary.Read(r, binary.BigEndian, &pad8)
	if gotMagic != magic || gotVersion != currentVersion {
		return cfg, ErrInvalidBlob
	}

	var honorDST uint8
	var pad16 uint16
	binary.Read(r, binary.BigEndian, &cfg.LatitudeE4)
	binary.Read(r, binary.BigEndian, &cfg.LongitudeE4)
	binary.Read(r, binary.BigEndian, &cfg.TZHours)
	binary.Read(r, binary.BigEndian, &honorDST)
	cfg.HonorDST = honorDST != 0
	binary.Read(r, binary.BigEndian, &cfg.RTCSetEpoch)
	binary.Read(r, binary.BigEndian, &cfg.DoorTravelMs)
	binary.Read(r, binary.BigEndian, &cfg.LockPulseMs)
	binary.Read(r, binary.BigEndian, &cfg.DoorSettleMs)
	binary.Read(r, binary.BigEndian, &cfg.LockSettleMs)
	binary.Read(r, binary.BigEndian, &pad16)

	for i := range cfg.Events {
		var deviceID, action, ref uint8
		binary.Read(r, binary.BigEndian, &cfg.Events[i].Refnum)
		binary.Read(r, binary.BigEndian, &deviceID)
		binary.Read(r, binary.BigEndian, &action)
		binary.Read(r, binary.BigEndian, &ref)
		binary.Read(r, binary.BigEndian, &cfg.Events[i].When.OffsetMinutes)
		cfg.Events[i].DeviceID = model.DeviceID(deviceID)
		cfg.Events[i].Action = model.Action(action)
		cfg.Events[i].When.Ref = model.SolarRef(ref)
	}
	return cfg, nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Save writes cfg to path atomically: encode, write to a temp file,
// fsync, then rename over the destination.
func Save(path string, cfg Config) error {
	tmp := path + ".tmp"
	data := Encode(cfg)

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the blob at blobPath. On any validation failure (missing
// file, bad magic/version/checksum) it falls back to the YAML bootstrap
// file at yamlPath, or to DefaultBootstrap if that is also unreadable,
// and reports ok=false so the caller can log a warning and blink the
// status LED red per the boot-sequence requirement.
func Load(blobPath, yamlPath string) (cfg Config, ok bool) {
	data, err := os.ReadFile(blobPath)
	if err == nil {
		if c, derr := Decode(data); derr == nil {
			return c, true
		}
	}

	boot, berr := LoadBootstrapYAML(yamlPath)
	if berr != nil {
		boot = DefaultBootstrap()
	}
	return FromBootstrap(boot), false
}

// LoadBootstrapYAML reads and parses the human-edited bootstrap seed file.
func LoadBootstrapYAML(path string) (BootstrapDefaults, error) {
	var b BootstrapDefaults
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, err
	}
	return b, nil
}
