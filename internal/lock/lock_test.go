package lock

import (
	"testing"

	"github.com/thatsimonsguy/coopd/internal/gpio"
	"github.com/thatsimonsguy/coopd/internal/model"
)

func newTestLock(pulseMs int64) (*Lock, *gpio.FakeChip) {
	chip := gpio.NewFakeChip()
	dirA, _ := chip.RequestOutput(1, "lock_dir_a", true)
	dirB, _ := chip.RequestOutput(2, "lock_dir_b", true)
	enable, _ := chip.RequestOutput(3, "lock_enable", true)
	return New("lock", model.DeviceLock, dirA, dirB, enable, pulseMs), chip
}

func TestNew_ClampsConfiguredPulseToHardCap(t *testing.T) {
	l, _ := newTestLock(5000)
	if l.pulseMs != MaxPulseMs {
		t.Errorf("pulseMs = %d, want clamped to %d", l.pulseMs, MaxPulseMs)
	}
}

func TestEngage_TicksToIdleAndLockedAfterPulseExpires(t *testing.T) {
	l, _ := newTestLock(200)
	l.Engage()
	if !l.IsBusy() {
		t.Fatalf("lock should be busy immediately after Engage")
	}

	l.Tick(0) // arm t0
	l.Tick(100)
	if !l.IsBusy() {
		t.Fatalf("lock should still be busy mid-pulse")
	}
	l.Tick(200)
	if l.IsBusy() {
		t.Errorf("lock should be idle once pulse duration elapses")
	}
	if l.GetState() != model.StateOn {
		t.Errorf("settled state = %v, want On (locked)", l.GetState())
	}
}

func TestRelease_SettlesToOff(t *testing.T) {
	l, _ := newTestLock(100)
	l.Release()
	l.Tick(0)
	l.Tick(100)
	if l.GetState() != model.StateOff {
		t.Errorf("settled state = %v, want Off (unlocked)", l.GetState())
	}
}

func TestEngage_IgnoredWhenNotIdle(t *testing.T) {
	l, chip := newTestLock(1000)
	l.Engage()
	l.Tick(0)
	writesAfterFirst := len(chip.Lines["lock_enable"].WriteHistory)

	l.Release() // should be ignored: lock is mid-Engaging
	if len(chip.Lines["lock_enable"].WriteHistory) != writesAfterFirst {
		t.Errorf("Release while Engaging should not issue new hardware commands")
	}
}

func TestTick_NeverExceedsHardCapRegardlessOfConfig(t *testing.T) {
	l, _ := newTestLock(10000) // config asked for 10s; hard cap wins
	l.Engage()
	l.Tick(0)
	l.Tick(MaxPulseMs - 1)
	if !l.IsBusy() {
		t.Fatalf("should still be busy just under the hard cap")
	}
	l.Tick(MaxPulseMs)
	if l.IsBusy() {
		t.Errorf("should be idle at the hard cap even though config requested longer")
	}
}

func TestEngageBlocking_DeenergizesHardwareOnReturn(t *testing.T) {
	l, chip := newTestLock(5)
	l.EngageBlocking()

	enableHistory := chip.Lines["lock_enable"].WriteHistory
	if len(enableHistory) == 0 || enableHistory[len(enableHistory)-1] != false {
		t.Fatalf("enable line must be de-energized on return, history: %v", enableHistory)
	}
	if l.IsBusy() {
		t.Errorf("lock should be Idle after a blocking pulse returns")
	}
}
