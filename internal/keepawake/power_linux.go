//go:build linux

package keepawake

import (
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const powerSupplyRoot = "/sys/class/power_supply"

// sysfsPowerProvider reads /sys/class/power_supply. Each supply directory has
// a "type" file (Mains, Battery, USB, ...); mains/USB expose "online" and
// batteries expose "status" and "capacity".
type sysfsPowerProvider struct {
	fs afero.Fs
}

// NewDefaultPowerProvider returns a provider backed by sysfs.
func NewDefaultPowerProvider() PowerProvider {
	return &sysfsPowerProvider{fs: afero.NewReadOnlyFs(afero.NewOsFs())}
}

func (p *sysfsPowerProvider) Snapshot() PowerSnapshot {
	entries, err := afero.ReadDir(p.fs, powerSupplyRoot)
	if err != nil {
		return PowerSnapshot{}
	}

	var snap PowerSnapshot
	sawMains := false
	mainsOnline := false

	for _, e := range entries {
		dir := path.Join(powerSupplyRoot, e.Name())
		switch p.read(dir, "type") {
		case "Mains", "USB", "USB_C", "USB_PD":
			online := p.read(dir, "online")
			if online == "" {
				continue
			}
			sawMains = true
			if online == "1" {
				mainsOnline = true
			}
		case "Battery":
			if scope := p.read(dir, "scope"); scope == "Device" {
				continue
			}
			if snap.BatteryPercent == nil {
				if pct, err := strconv.Atoi(p.read(dir, "capacity")); err == nil && pct >= 0 && pct <= 100 {
					snap.BatteryPercent = &pct
				}
			}
			if snap.OnBattery == nil {
				switch p.read(dir, "status") {
				case "Discharging":
					snap.OnBattery = boolPtr(true)
				case "Charging", "Full", "Not charging":
					snap.OnBattery = boolPtr(false)
				}
			}
		}
	}

	if sawMains {
		snap.ExternalPower = boolPtr(mainsOnline)
		if snap.OnBattery == nil && snap.BatteryPercent != nil {
			snap.OnBattery = boolPtr(!mainsOnline)
		}
	}
	return snap
}

func (p *sysfsPowerProvider) read(dir, name string) string {
	data, err := afero.ReadFile(p.fs, path.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
