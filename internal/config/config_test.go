package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thatsimonsguy/coopd/internal/model"
)

func sampleConfig() Config {
	cfg := FromBootstrap(BootstrapDefaults{
		Latitude: 45.5, Longitude: -122.6, TZHours: -8, HonorDST: true,
		DoorTravelMs: 8000, LockPulseMs: 750, DoorSettleMs: 500, LockSettleMs: 750,
	})
	cfg.RTCSetEpoch = 1700000000
	cfg.Events[0] = model.Event{
		Refnum: 1, DeviceID: model.DeviceDoor, Action: model.ActionOn,
		When: model.When{Ref: model.RefSolarSunrise, OffsetMinutes: -15},
	}
	return cfg
}

func TestEncodeDecode_RoundTrips(t *testing.T) {
	want := sampleConfig()
	data := Encode(want)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error on freshly encoded blob: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestDecode_RejectsCorruptedChecksum(t *testing.T) {
	data := Encode(sampleConfig())
	data[len(data)-1] ^= 0xFF

	if _, err := Decode(data); err != ErrInvalidBlob {
		t.Errorf("Decode() err = %v, want ErrInvalidBlob", err)
	}
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	data := Encode(sampleConfig())
	data[0] ^= 0xFF

	if _, err := Decode(data); err != ErrInvalidBlob {
		t.Errorf("Decode() err = %v, want ErrInvalidBlob", err)
	}
}

func TestDecode_RejectsTruncatedBlob(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02, 0x03}); err != ErrInvalidBlob {
		t.Errorf("Decode() err = %v, want ErrInvalidBlob", err)
	}
}

func TestSaveLoad_RoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coop.cfg")
	want := sampleConfig()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := Load(path, filepath.Join(dir, "missing.yaml"))
	if !ok {
		t.Fatalf("Load() ok = false, want true for a freshly saved blob")
	}
	if got != want {
		t.Errorf("Load mismatch:\n got  %+v\n want %+v", got, want)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not survive a successful Save")
	}
}

func TestLoad_FallsBackToBootstrapYAMLWhenBlobMissing(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bootstrap.yaml")
	yamlContent := "latitude: 45.5\nlongitude: -122.6\ntz_hours: -8\nhonor_dst: true\ndoor_travel_ms: 9000\nlock_pulse_ms: 600\ndoor_settle_ms: 400\nlock_settle_ms: 500\n"
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, ok := Load(filepath.Join(dir, "missing.cfg"), yamlPath)
	if ok {
		t.Errorf("Load() ok = true, want false when the blob is absent")
	}
	if cfg.DoorTravelMs != 9000 {
		t.Errorf("DoorTravelMs = %d, want 9000 from bootstrap YAML", cfg.DoorTravelMs)
	}
	if cfg.TZHours != -8 || !cfg.HonorDST {
		t.Errorf("TZHours/HonorDST not carried through from bootstrap YAML: %+v", cfg)
	}
}

func TestLoad_FallsBackToDefaultBootstrapWhenBothMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, ok := Load(filepath.Join(dir, "missing.cfg"), filepath.Join(dir, "missing.yaml"))
	if ok {
		t.Errorf("Load() ok = true, want false when nothing is present")
	}

	want := FromBootstrap(DefaultBootstrap())
	if cfg != want {
		t.Errorf("Load mismatch:\n got  %+v\n want %+v", cfg, want)
	}
}

func TestLoad_CorruptBlobFallsBackRatherThanPropagatingError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coop.cfg")
	data := Encode(sampleConfig())
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, ok := Load(path, filepath.Join(dir, "missing.yaml"))
	if ok {
		t.Errorf("Load() ok = true, want false for a corrupted blob")
	}
	want := FromBootstrap(DefaultBootstrap())
	if cfg != want {
		t.Errorf("expected default-bootstrap fallback, got %+v", cfg)
	}
}
