// Package imu define las fuentes de aceleración 3 ejes del agente.
package imu

import "tracker-agent/internal/pipeline"

// Provider entrega muestras de acelerómetro por canal. El consumidor se
// queda con la última muestra; no hay cola ni replay.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	Samples() <-chan pipeline.AccelSample
}
