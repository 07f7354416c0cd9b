package gps

import (
	"math"
	"math/rand"
	"time"

	"tracker-agent/internal/pipeline"
)

// DemoProvider genera una ruta sintética alrededor de un punto base, para
// probar el agente en banco sin receptor conectado.
type DemoProvider struct {
	lat   float64
	lon   float64
	speed float64
	hdg   float64
}

func NewDemo() *DemoProvider {
	return &DemoProvider{
		lat:   34.6937, // Osaka
		lon:   135.5023,
		speed: 30,
		hdg:   45,
	}
}

func (d *DemoProvider) Name() string   { return "demo GPS" }
func (d *DemoProvider) Connect() error { return nil }
func (d *DemoProvider) Close() error   { return nil }

func (d *DemoProvider) Read() (pipeline.Fix, error) {
	// deriva suave de velocidad y rumbo
	d.speed += rand.Float64()*4 - 2
	d.speed = math.Max(0, math.Min(80, d.speed))
	d.hdg += rand.Float64()*10 - 5

	// avanza ~speed km/h asumiendo una lectura por segundo
	stepDeg := d.speed / 3.6 / 111320.0
	rad := d.hdg * math.Pi / 180
	d.lat += stepDeg * math.Cos(rad)
	d.lon += stepDeg * math.Sin(rad) / math.Cos(d.lat*math.Pi/180)

	return pipeline.Fix{
		Valid:    true,
		Lat:      d.lat,
		Lon:      d.lon,
		SpeedKmh: d.speed,
		Bearing:  math.Mod(d.hdg+360, 360),
		Time:     time.Now(),
	}, nil
}
