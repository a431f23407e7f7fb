//go:build linux

package keepawake

import (
	"testing"

	"github.com/spf13/afero"
)

func writeSupply(t *testing.T, fs afero.Fs, name string, files map[string]string) {
	t.Helper()
	for file, content := range files {
		if err := afero.WriteFile(fs, powerSupplyRoot+"/"+name+"/"+file, []byte(content+"\n"), 0644); err != nil {
			t.Fatalf("write %s/%s: %v", name, file, err)
		}
	}
}

func TestSysfsPower_LaptopOnBattery(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSupply(t, fs, "AC", map[string]string{"type": "Mains", "online": "0"})
	writeSupply(t, fs, "BAT0", map[string]string{"type": "Battery", "status": "Discharging", "capacity": "42"})

	snap := (&sysfsPowerProvider{fs: fs}).Snapshot()
	if snap.OnBattery == nil || !*snap.OnBattery {
		t.Error("OnBattery should be true")
	}
	if snap.ExternalPower == nil || *snap.ExternalPower {
		t.Error("ExternalPower should be false")
	}
	if snap.BatteryPercent == nil || *snap.BatteryPercent != 42 {
		t.Errorf("BatteryPercent = %v, want 42", snap.BatteryPercent)
	}
}

func TestSysfsPower_LaptopCharging(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSupply(t, fs, "ADP1", map[string]string{"type": "Mains", "online": "1"})
	writeSupply(t, fs, "BAT1", map[string]string{"type": "Battery", "status": "Charging", "capacity": "85"})
	writeSupply(t, fs, "hidpp_battery_0", map[string]string{"type": "Battery", "scope": "Device", "status": "Discharging", "capacity": "10"})

	snap := (&sysfsPowerProvider{fs: fs}).Snapshot()
	if snap.OnBattery == nil || *snap.OnBattery {
		t.Error("OnBattery should be false")
	}
	if snap.ExternalPower == nil || !*snap.ExternalPower {
		t.Error("ExternalPower should be true")
	}
	if snap.BatteryPercent == nil || *snap.BatteryPercent != 85 {
		t.Errorf("BatteryPercent = %v, want 85 (peripheral battery ignored)", snap.BatteryPercent)
	}
}

func TestSysfsPower_DesktopMainsOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSupply(t, fs, "AC", map[string]string{"type": "Mains", "online": "1"})

	snap := (&sysfsPowerProvider{fs: fs}).Snapshot()
	if snap.ExternalPower == nil || !*snap.ExternalPower {
		t.Error("ExternalPower should be true")
	}
	if snap.OnBattery != nil || snap.BatteryPercent != nil {
		t.Errorf("battery readings should be unknown, got %+v", snap)
	}
}

func TestSysfsPower_NoSysfs(t *testing.T) {
	snap := (&sysfsPowerProvider{fs: afero.NewMemMapFs()}).Snapshot()
	if snap.OnBattery != nil || snap.ExternalPower != nil || snap.BatteryPercent != nil {
		t.Errorf("expected all-unknown snapshot, got %+v", snap)
	}
}
