package imu

import (
	"math/rand"
	"time"

	"tracker-agent/internal/pipeline"
)

// DemoProvider emite aceleración sintética (jitter alrededor de reposo).
type DemoProvider struct {
	samples chan pipeline.AccelSample
	stop    chan struct{}
}

func NewDemoIMU() *DemoProvider {
	return &DemoProvider{
		samples: make(chan pipeline.AccelSample, 8),
		stop:    make(chan struct{}),
	}
}

func (d *DemoProvider) Name() string { return "demo IMU" }

func (d *DemoProvider) Connect() error {
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				s := pipeline.AccelSample{
					X: rand.Float64()*2 - 1,
					Y: rand.Float64()*2 - 1,
					Z: 9.8 + rand.Float64()*0.4 - 0.2,
				}
				select {
				case d.samples <- s:
				default:
				}
			}
		}
	}()
	return nil
}

func (d *DemoProvider) Samples() <-chan pipeline.AccelSample { return d.samples }

func (d *DemoProvider) Close() error {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	return nil
}
