package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracker-agent/internal/observability"
)

// Claves del registro persistido (contrato local, sin migraciones).
const (
	keyDeviceID  = "device_id"
	keyCarID     = "car_id"
	keyTimestamp = "timestamp"
)

const defaultMachineIDPath = "/etc/machine-id"

// DeviceInfo es la identidad persistida del dispositivo. DeviceID es
// estable de por vida de la instalación; CarID queda en 0 hasta que el
// backend asocia un vehículo.
type DeviceInfo struct {
	DeviceID  string `json:"device_id"`
	CarID     int    `json:"car_id"`
	Timestamp int64  `json:"timestamp"`
}

// Identity administra la identidad del dispositivo sobre un KV.
type Identity struct {
	kv            KV
	log           *slog.Logger
	machineIDPath string

	mu sync.Mutex // serializa la generación lazy del device id
}

func NewIdentity(kv KV, lg *slog.Logger) *Identity {
	return &Identity{
		kv:            kv,
		log:           lg.With("component", "identity"),
		machineIDPath: defaultMachineIDPath,
	}
}

// Info devuelve el registro completo, o ErrNotFound si nunca se inicializó.
// El registro se considera inicializado sólo con los tres campos presentes.
func (s *Identity) Info(ctx context.Context) (DeviceInfo, error) {
	vals, err := s.kv.GetAll(ctx, keyDeviceID, keyCarID, keyTimestamp)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("identity read: %w", err)
	}
	id, okID := vals[keyDeviceID]
	carRaw, okCar := vals[keyCarID]
	tsRaw, okTS := vals[keyTimestamp]
	if !okID || !okCar || !okTS {
		return DeviceInfo{}, ErrNotFound
	}
	carID, err := strconv.Atoi(carRaw)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("identity: bad car_id %q: %w", carRaw, err)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("identity: bad timestamp %q: %w", tsRaw, err)
	}
	return DeviceInfo{DeviceID: id, CarID: carID, Timestamp: ts}, nil
}

// Save upserta los tres campos de una sola vez.
func (s *Identity) Save(ctx context.Context, info DeviceInfo) error {
	err := s.kv.SetAll(ctx, map[string]string{
		keyDeviceID:  info.DeviceID,
		keyCarID:     strconv.Itoa(info.CarID),
		keyTimestamp: strconv.FormatInt(info.Timestamp, 10),
	})
	if err != nil {
		return fmt.Errorf("identity write: %w", err)
	}
	return nil
}

// DeviceID devuelve el identificador persistido, generándolo la primera
// vez. Idempotente: una vez persistido siempre devuelve el mismo valor,
// también ante llamadas concurrentes.
func (s *Identity) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.Info(ctx)
	if err == nil {
		return info.DeviceID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id := s.generate()
	err = s.Save(ctx, DeviceInfo{
		DeviceID:  id,
		CarID:     0,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	s.log.Info("device id generated", "device_id", id)
	return id, nil
}

// generate prefiere el machine-id de la plataforma; si no se puede leer
// cae a un UUID aleatorio (que igual queda persistido y es estable).
func (s *Identity) generate() string {
	raw, err := os.ReadFile(s.machineIDPath)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}
	observability.IdentityFallback.Inc()
	s.log.Warn("machine id unavailable, falling back to random id", "path", s.machineIDPath, "err", err)
	return uuid.NewString()
}
