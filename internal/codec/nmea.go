// Package codec parsea sentencias NMEA 0183 del receptor GPS.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotNMEA      = errors.New("codec: not an NMEA sentence")
	ErrBadChecksum  = errors.New("codec: checksum mismatch")
	ErrShortPayload = errors.New("codec: sentence too short")
)

// RMC es lo que sacamos de $xxRMC: posición, velocidad y rumbo.
type RMC struct {
	Valid    bool
	Lat      float64
	Lon      float64
	SpeedKmh float64
	Course   float64
	Time     string // hhmmss.ss UTC
}

// GGA es lo que sacamos de $xxGGA: calidad del fix y satélites.
type GGA struct {
	Quality    int
	Satellites int
	HDOP       float64
	Altitude   float64
}

const knotsToKmh = 1.852

// ChecksumOK valida el XOR entre '$' y '*'.
func ChecksumOK(line string) bool {
	if !strings.HasPrefix(line, "$") {
		return false
	}
	star := strings.LastIndex(line, "*")
	if star < 0 || star+3 > len(line) {
		return false
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return false
	}
	return sum == byte(want)
}

// IsRMC / IsGGA filtran por talker (GP, GN, GL...) sin atarse a uno.
func IsRMC(line string) bool { return sentenceType(line) == "RMC" }
func IsGGA(line string) bool { return sentenceType(line) == "GGA" }

func sentenceType(line string) string {
	if len(line) < 7 || line[0] != '$' {
		return ""
	}
	return line[3:6]
}

// ParseRMC parsea una sentencia RMC ya validada por checksum.
// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,spd,crs,ddmmyy,...*hh
func ParseRMC(line string) (RMC, error) {
	parts, err := fields(line)
	if err != nil {
		return RMC{}, err
	}
	if len(parts) < 10 {
		return RMC{}, ErrShortPayload
	}

	out := RMC{
		Time:  parts[1],
		Valid: parts[2] == "A",
	}
	if !out.Valid {
		return out, nil
	}

	out.Lat, err = parseCoord(parts[3], parts[4])
	if err != nil {
		return RMC{}, fmt.Errorf("codec: bad latitude: %w", err)
	}
	out.Lon, err = parseCoord(parts[5], parts[6])
	if err != nil {
		return RMC{}, fmt.Errorf("codec: bad longitude: %w", err)
	}
	if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
		out.SpeedKmh = spd * knotsToKmh
	}
	if crs, err := strconv.ParseFloat(parts[8], 64); err == nil {
		out.Course = crs
	}
	return out, nil
}

// ParseGGA parsea una sentencia GGA ya validada por checksum.
// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,fix,sats,hdop,alt,M,...*hh
func ParseGGA(line string) (GGA, error) {
	parts, err := fields(line)
	if err != nil {
		return GGA{}, err
	}
	if len(parts) < 10 {
		return GGA{}, ErrShortPayload
	}

	var out GGA
	if fix, err := strconv.Atoi(parts[6]); err == nil {
		out.Quality = fix
	}
	if sats, err := strconv.Atoi(parts[7]); err == nil {
		out.Satellites = sats
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		out.HDOP = hdop
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		out.Altitude = alt
	}
	return out, nil
}

// fields corta la sentencia en campos, sin el checksum.
func fields(line string) ([]string, error) {
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotNMEA
	}
	if star := strings.LastIndex(line, "*"); star >= 0 {
		line = line[:star]
	}
	return strings.Split(line, ","), nil
}

// parseCoord convierte ddmm.mmmm + hemisferio a grados decimales.
func parseCoord(value, hemi string) (float64, error) {
	if value == "" || hemi == "" {
		return 0, ErrShortPayload
	}
	dot := strings.Index(value, ".")
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degDigits := dot - 2 // minutos siempre son 2 dígitos antes del punto

	deg, err := strconv.ParseFloat(value[:degDigits], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, err
	}

	out := deg + min/60.0
	if hemi == "S" || hemi == "W" {
		out = -out
	}
	return out, nil
}
