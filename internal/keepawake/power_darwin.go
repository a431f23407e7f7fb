//go:build darwin

package keepawake

import (
	"bufio"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var (
	powerSourceRe = regexp.MustCompile(`drawing from '([^']+)'`)
	batteryLineRe = regexp.MustCompile(`\b(\d{1,3})%;`)
)

type pmsetPowerProvider struct{}

// NewDefaultPowerProvider reads `pmset -g batt`.
func NewDefaultPowerProvider() PowerProvider {
	return pmsetPowerProvider{}
}

func (pmsetPowerProvider) Snapshot() PowerSnapshot {
	out, err := exec.Command("pmset", "-g", "batt").Output()
	if err != nil {
		return PowerSnapshot{}
	}
	return parsePmsetOutput(string(out))
}

// parsePmsetOutput leaves fields nil when pmset does not report them.
func parsePmsetOutput(output string) PowerSnapshot {
	var snap PowerSnapshot

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if m := powerSourceRe.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case "Battery Power":
				snap.OnBattery, snap.ExternalPower = boolPtr(true), boolPtr(false)
			case "AC Power":
				snap.OnBattery, snap.ExternalPower = boolPtr(false), boolPtr(true)
			}
			continue
		}
		if snap.BatteryPercent != nil {
			continue
		}
		if m := batteryLineRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.Atoi(m[1]); err == nil && pct <= 100 {
				snap.BatteryPercent = &pct
			}
		}
	}
	return snap
}
