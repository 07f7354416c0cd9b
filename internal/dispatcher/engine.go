// Package dispatcher corre el loop de muestreo: consume fixes GPS y
// muestras de acelerómetro, arma reportes de telemetría y los despacha
// al backend.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tracker-agent/internal/gps"
	"tracker-agent/internal/imu"
	"tracker-agent/internal/observability"
	"tracker-agent/internal/pipeline"
	"tracker-agent/internal/platform"
	"tracker-agent/internal/store"
)

// State es el estado del engine. A lo sumo hay una instancia activa.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

var ErrAlreadyRunning = errors.New("dispatcher: engine already running")

// Reporter es lo que el engine necesita del link al backend.
type Reporter interface {
	SendLocationData(ctx context.Context, r pipeline.Report) error
	RegisterCarID(ctx context.Context, deviceID string, carID int) (int, error)
}

// IdentityStore es lo que el engine necesita del identity store.
type IdentityStore interface {
	DeviceID(ctx context.Context) (string, error)
	Info(ctx context.Context) (store.DeviceInfo, error)
	Save(ctx context.Context, info store.DeviceInfo) error
}

// Config del engine.
type Config struct {
	Interval    time.Duration // período de muestreo
	SendTimeout time.Duration // timeout por reporte
}

// Engine es el sampling loop. Todo el estado mutable (fix anterior,
// última aceleración, car id vigente) lo escribe un único goroutine; la
// red corre en workers que devuelven el resultado por canal.
type Engine struct {
	gps      gps.Provider
	imu      imu.Provider
	battery  platform.Battery
	identity IdentityStore
	backend  Reporter
	log      *slog.Logger
	cfg      Config

	state atomic.Int32

	mu     sync.Mutex // transiciones start/stop
	cancel context.CancelFunc
	done   chan struct{}

	carIDCh chan int

	// propiedad exclusiva del loop
	prev  pipeline.PrevState
	accel pipeline.AccelSample
	carID int

	// snapshot observable para la capa de presentación
	snapMu    sync.RWMutex
	latest    pipeline.Report
	hasLatest bool
	subs      map[chan pipeline.Report]struct{}
}

func New(gpsProv gps.Provider, imuProv imu.Provider, battery platform.Battery,
	identity IdentityStore, backend Reporter, lg *slog.Logger, cfg Config) *Engine {

	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Engine{
		gps:      gpsProv,
		imu:      imuProv,
		battery:  battery,
		identity: identity,
		backend:  backend,
		log:      lg.With("component", "dispatcher"),
		cfg:      cfg,
		carIDCh:  make(chan int, 4),
		subs:     make(map[chan pipeline.Report]struct{}),
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Start adquiere las suscripciones de posición y aceleración y arranca el
// loop. Si la fuente de posición no está disponible el engine vuelve a
// Stopped y no reintenta solo.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateStopped {
		return ErrAlreadyRunning
	}
	e.state.Store(int32(StateStarting))

	if err := e.gps.Connect(); err != nil {
		e.state.Store(int32(StateStopped))
		return fmt.Errorf("location source unavailable: %w", err)
	}
	if err := e.imu.Connect(); err != nil {
		_ = e.gps.Close()
		e.state.Store(int32(StateStopped))
		return fmt.Errorf("accelerometer unavailable: %w", err)
	}

	// último car id conocido; 0 si nunca hubo asociación
	e.carID = 0
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 3*time.Second)
	if info, err := e.identity.Info(loadCtx); err == nil {
		e.carID = info.CarID
	} else if !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("could not load persisted car id", "err", err)
	}
	cancelLoad()

	e.prev = pipeline.PrevState{}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state.Store(int32(StateRunning))
	go e.run(ctx)

	e.log.Info("engine started", "gps", e.gps.Name(), "imu", e.imu.Name(),
		"interval", e.cfg.Interval, "car_id", e.carID)
	return nil
}

// Stop libera ambas suscripciones. Idempotente; un reporte en vuelo
// termina solo y su resultado se descarta.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) == StateStopped {
		return
	}
	e.state.Store(int32(StateStopping))
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
	_ = e.gps.Close()
	_ = e.imu.Close()
	e.state.Store(int32(StateStopped))
	e.log.Info("engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	acks := make(chan pipeline.PrevState, 4)

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-e.imu.Samples():
			e.accel = s
		case id := <-e.carIDCh:
			e.carID = id
		case ps := <-acks:
			e.prev = ps
		case <-ticker.C:
			e.sample(ctx, acks)
		}
	}
}

// sample es el protocolo por fix. Corre completo dentro del loop salvo la
// red, que va a workers.
func (e *Engine) sample(ctx context.Context, acks chan<- pipeline.PrevState) {
	fix, err := e.gps.Read()
	if err != nil {
		e.log.Warn("gps read failed", "err", err)
		return
	}
	observability.FixesReceived.Inc()
	if !fix.Valid {
		observability.FixesSkipped.Inc()
		return
	}

	now := time.Now()
	report := pipeline.BuildReport(e.prev, fix, e.accel, e.carID, e.battery.Percent(), now)
	e.publish(report)

	// lectura async del car id persistido: si no llega a tiempo, el fix
	// siguiente usa el último valor en memoria
	go e.refreshCarID(ctx)

	next := pipeline.PrevState{Lat: fix.Lat, Lon: fix.Lon, TimeMillis: now.UnixMilli(), Set: true}
	go e.send(ctx, report, next, acks)
}

func (e *Engine) send(ctx context.Context, r pipeline.Report, next pipeline.PrevState, acks chan<- pipeline.PrevState) {
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(context.Background(), e.cfg.SendTimeout)
	defer cancel()

	err := e.backend.SendLocationData(sendCtx, r)
	observability.ObserveReportLatency(start)
	if err != nil {
		// sin reintento acá: el próximo fix reintenta con el delta
		// acumulado porque prev no avanza
		observability.ReportsFailed.Inc()
		e.log.Warn("report failed", "err", err)
		return
	}
	observability.ReportsSent.Inc()
	e.log.Debug("report sent", "lat", r.Lat, "lon", r.Lon, "distance", r.Distance)

	select {
	case acks <- next:
	case <-ctx.Done():
		// engine detenido: el resultado se descarta
	}
}

func (e *Engine) refreshCarID(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info, err := e.identity.Info(rctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && ctx.Err() == nil {
			e.log.Warn("car id refresh failed", "err", err)
		}
		return
	}
	select {
	case e.carIDCh <- info.CarID:
	default:
	}
}

// SetCarID confirma el vehículo contra el backend y persiste la identidad
// actualizada. Corre en el goroutine del que llama (superficie de
// control), no en el loop. Si el backend falla no se persiste nada y el
// valor en memoria queda intacto; si confirma, el nuevo id aplica en el
// próximo fix sin reiniciar el engine.
func (e *Engine) SetCarID(ctx context.Context, carID int) (int, error) {
	deviceID, err := e.identity.DeviceID(ctx)
	if err != nil {
		return 0, err
	}

	confirmed, err := e.backend.RegisterCarID(ctx, deviceID, carID)
	if err != nil {
		return 0, err
	}

	err = e.identity.Save(ctx, store.DeviceInfo{
		DeviceID:  deviceID,
		CarID:     confirmed,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return 0, err
	}

	select {
	case e.carIDCh <- confirmed:
	default:
	}
	e.log.Info("car id updated", "car_id", confirmed)
	return confirmed, nil
}

// Latest devuelve el último reporte armado, si hay.
func (e *Engine) Latest() (pipeline.Report, bool) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.latest, e.hasLatest
}

// Subscribe entrega cada nuevo reporte por canal. Suscriptores lentos
// pierden reportes en vez de frenar el loop. El cierre devuelto debe
// llamarse al terminar.
func (e *Engine) Subscribe() (<-chan pipeline.Report, func()) {
	ch := make(chan pipeline.Report, 4)
	e.snapMu.Lock()
	e.subs[ch] = struct{}{}
	e.snapMu.Unlock()

	unsub := func() {
		e.snapMu.Lock()
		delete(e.subs, ch)
		e.snapMu.Unlock()
	}
	return ch, unsub
}

// Subscribers es la cantidad de suscriptores vivos (clientes websocket).
func (e *Engine) Subscribers() int {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return len(e.subs)
}

func (e *Engine) publish(r pipeline.Report) {
	e.snapMu.Lock()
	e.latest = r
	e.hasLatest = true
	for ch := range e.subs {
		select {
		case ch <- r:
		default:
		}
	}
	e.snapMu.Unlock()
}
