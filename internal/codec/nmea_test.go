package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentencia real de un NEO-M8N (checksum válido)
const (
	rmcLine = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	ggaLine = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

func TestChecksum(t *testing.T) {
	assert.True(t, ChecksumOK(rmcLine))
	assert.True(t, ChecksumOK(ggaLine))

	assert.False(t, ChecksumOK("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6B"))
	assert.False(t, ChecksumOK("GPRMC,123519,A*00"))
	assert.False(t, ChecksumOK("$GPRMC,123519"))
}

func TestSentenceType(t *testing.T) {
	assert.True(t, IsRMC(rmcLine))
	assert.False(t, IsGGA(rmcLine))
	assert.True(t, IsGGA(ggaLine))
	// talker GN (multi-constelación) también cuenta
	assert.True(t, IsRMC("$GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,*00"))
}

func TestParseRMC(t *testing.T) {
	rmc, err := ParseRMC(rmcLine)
	require.NoError(t, err)

	assert.True(t, rmc.Valid)
	assert.InDelta(t, 48.1173, rmc.Lat, 0.0001)
	assert.InDelta(t, 11.5166, rmc.Lon, 0.0001)
	assert.InDelta(t, 22.4*1.852, rmc.SpeedKmh, 0.001) // nudos a km/h
	assert.InDelta(t, 84.4, rmc.Course, 0.001)
	assert.Equal(t, "123519", rmc.Time)
}

func TestParseRMCVoidFix(t *testing.T) {
	rmc, err := ParseRMC("$GPRMC,123519,V,,,,,,,230394,,*00")
	require.NoError(t, err)
	assert.False(t, rmc.Valid)
}

func TestParseRMCSouthWest(t *testing.T) {
	rmc, err := ParseRMC("$GPRMC,123519,A,3351.000,S,07040.000,W,000.0,000.0,230394,,*00")
	require.NoError(t, err)
	assert.InDelta(t, -33.85, rmc.Lat, 0.0001)
	assert.InDelta(t, -70.6667, rmc.Lon, 0.0001)
}

func TestParseGGA(t *testing.T) {
	gga, err := ParseGGA(ggaLine)
	require.NoError(t, err)

	assert.Equal(t, 1, gga.Quality)
	assert.Equal(t, 8, gga.Satellites)
	assert.InDelta(t, 0.9, gga.HDOP, 0.001)
	assert.InDelta(t, 545.4, gga.Altitude, 0.001)
}

func TestParseMalformed(t *testing.T) {
	_, err := ParseRMC("$GPRMC,123519,A*00")
	assert.Error(t, err)
	_, err = ParseRMC("garbage")
	assert.Error(t, err)
	_, err = ParseGGA("$GPGGA,1*00")
	assert.Error(t, err)
}
