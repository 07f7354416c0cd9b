package gps

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"tracker-agent/internal/codec"
	"tracker-agent/internal/observability"
	"tracker-agent/internal/pipeline"
	"tracker-agent/internal/utilities"
)

// SerialConfig configura el receptor NMEA por UART.
type SerialConfig struct {
	PortPath string
	BaudRate int
	RawDir   string // captura cruda de sentencias, opcional
}

// Un receptor que lleva más de esto sin emitir un RMC válido ya no
// respalda el último fix: se reporta como inválido hasta que reviva.
const staleAfter = 10 * time.Second

// SerialProvider lee sentencias NMEA de un GPS por puerto serie
// (u-blox NEO-M8N o cualquier receptor NMEA estándar).
type SerialProvider struct {
	cfg     SerialConfig
	log     *slog.Logger
	port    serial.Port
	src     io.Reader
	scanner *bufio.Scanner

	mu      sync.Mutex
	last    pipeline.Fix
	lastRMC time.Time
}

func NewSerial(cfg SerialConfig, lg *slog.Logger) *SerialProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	return &SerialProvider{
		cfg: cfg,
		log: lg.With("component", "gps"),
	}
}

func (p *SerialProvider) Name() string { return "NMEA serial" }

func (p *SerialProvider) Connect() error {
	mode := &serial.Mode{
		BaudRate: p.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(p.cfg.PortPath, mode)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", p.cfg.PortPath, err)
	}
	_ = port.SetReadTimeout(200 * time.Millisecond)
	p.port = port
	p.src = port
	p.scanner = bufio.NewScanner(port)
	p.log.Info("gps connected", "port", p.cfg.PortPath, "baud", p.cfg.BaudRate)
	return nil
}

func (p *SerialProvider) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Read consume sentencias hasta juntar un RMC (y de paso un GGA) o agotar
// el presupuesto de líneas, y devuelve el último fix acumulado. Un
// receptor mudo traba el scanner (los timeouts del puerto devuelven
// lecturas vacías y bufio corta con ErrNoProgress); en ese caso el
// scanner se rearma para que la próxima llamada vuelva a leer cuando el
// receptor reviva, y un fix sin refrescar hace rato se degrada a
// inválido en vez de congelarse como posición vigente.
func (p *SerialProvider) Read() (pipeline.Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scanner == nil {
		return p.last, fmt.Errorf("gps: not connected")
	}

	gotRMC := false
	for i := 0; i < 20 && !gotRMC; i++ {
		if !p.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(p.scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		utilities.CreateLog(p.cfg.RawDir, "NMEA", line)
		if !codec.ChecksumOK(line) {
			observability.ParseErrors.Inc()
			continue
		}

		switch {
		case codec.IsRMC(line):
			rmc, err := codec.ParseRMC(line)
			if err != nil {
				observability.ParseErrors.Inc()
				continue
			}
			p.applyRMC(rmc)
			gotRMC = true
		case codec.IsGGA(line):
			gga, err := codec.ParseGGA(line)
			if err != nil {
				observability.ParseErrors.Inc()
				continue
			}
			observability.Satellites.Set(float64(gga.Satellites))
		}
	}

	if err := p.scanner.Err(); err != nil {
		p.log.Warn("gps read stalled, resetting reader", "err", err)
		p.scanner = bufio.NewScanner(p.src)
	}
	if !gotRMC && p.last.Valid && time.Since(p.lastRMC) > staleAfter {
		p.log.Warn("gps fix stale, marking invalid", "age", time.Since(p.lastRMC))
		p.last.Valid = false
	}

	return p.last, nil
}

func (p *SerialProvider) applyRMC(rmc codec.RMC) {
	p.last.Valid = rmc.Valid && coordsPlausible(rmc.Lat, rmc.Lon)
	if !p.last.Valid {
		return
	}
	p.last.Lat = rmc.Lat
	p.last.Lon = rmc.Lon
	p.last.SpeedKmh = rmc.SpeedKmh
	p.last.Bearing = rmc.Course
	p.last.Time = time.Now()
	p.lastRMC = p.last.Time
}

func coordsPlausible(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
