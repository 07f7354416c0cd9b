// Package gps define las fuentes de fixes de posición del agente.
package gps

import "tracker-agent/internal/pipeline"

// Provider es una fuente de fixes GPS. Read devuelve el último fix
// conocido; puede bloquear brevemente mientras lee del dispositivo.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	Read() (pipeline.Fix, error)
}
