// Package platform lee estado del equipo host (batería).
package platform

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Battery devuelve el porcentaje de carga actual.
type Battery interface {
	Percent() int
}

// SysfsBattery lee /sys/class/power_supply/<name>/capacity.
type SysfsBattery struct {
	path string
	log  *slog.Logger

	warnOnce sync.Once
}

func NewSysfsBattery(path string, lg *slog.Logger) *SysfsBattery {
	if path == "" {
		path = "/sys/class/power_supply/BAT0/capacity"
	}
	return &SysfsBattery{path: path, log: lg.With("component", "battery")}
}

func (b *SysfsBattery) Percent() int {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		// sin batería expuesta (equipo a 12V del vehículo): reportar lleno
		b.warnOnce.Do(func() {
			b.log.Warn("battery capacity unreadable, reporting 100", "path", b.path, "err", err)
		})
		return 100
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 100
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// StaticBattery reporta siempre el mismo valor (equipos sin batería).
type StaticBattery int

func (s StaticBattery) Percent() int { return int(s) }
