package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker-agent/internal/pipeline"
	"tracker-agent/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---- fakes ----

type fakeGPS struct {
	mu      sync.Mutex
	fixes   []pipeline.Fix
	idx     int
	connErr error
	closed  bool
}

func (f *fakeGPS) Name() string { return "fake GPS" }
func (f *fakeGPS) Connect() error {
	return f.connErr
}
func (f *fakeGPS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeGPS) Read() (pipeline.Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fixes) == 0 {
		return pipeline.Fix{}, nil
	}
	fix := f.fixes[f.idx]
	if f.idx < len(f.fixes)-1 {
		f.idx++
	}
	return fix, nil
}

type fakeIMU struct {
	ch chan pipeline.AccelSample
}

func newFakeIMU() *fakeIMU {
	return &fakeIMU{ch: make(chan pipeline.AccelSample, 8)}
}
func (f *fakeIMU) Name() string                         { return "fake IMU" }
func (f *fakeIMU) Connect() error                       { return nil }
func (f *fakeIMU) Close() error                         { return nil }
func (f *fakeIMU) Samples() <-chan pipeline.AccelSample { return f.ch }
func (f *fakeIMU) push(s pipeline.AccelSample)          { f.ch <- s }

type fakeBattery int

func (b fakeBattery) Percent() int { return int(b) }

// fakeReporter captura reportes y permite inyectar fallos por índice.
type fakeReporter struct {
	mu       sync.Mutex
	reports  []pipeline.Report
	failIdx  map[int]bool
	notify   chan struct{}
	regErr   error
	regCalls int
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{
		failIdx: make(map[int]bool),
		notify:  make(chan struct{}, 32),
	}
}

func (f *fakeReporter) SendLocationData(_ context.Context, r pipeline.Report) error {
	f.mu.Lock()
	idx := len(f.reports)
	f.reports = append(f.reports, r)
	fail := f.failIdx[idx]
	f.mu.Unlock()
	f.notify <- struct{}{}
	if fail {
		return errors.New("fake transport failure")
	}
	return nil
}

func (f *fakeReporter) RegisterCarID(_ context.Context, _ string, carID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regCalls++
	if f.regErr != nil {
		return 0, f.regErr
	}
	return carID, nil
}

func (f *fakeReporter) captured() []pipeline.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Report, len(f.reports))
	copy(out, f.reports)
	return out
}

func (f *fakeReporter) waitReports(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for report %d/%d", i+1, n)
		}
	}
}

type fakeIdentity struct {
	mu        sync.Mutex
	info      store.DeviceInfo
	set       bool
	saveCalls int
	deviceErr error
}

func (f *fakeIdentity) DeviceID(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deviceErr != nil {
		return "", f.deviceErr
	}
	if !f.set {
		f.info = store.DeviceInfo{DeviceID: "dev-test", Timestamp: time.Now().UnixMilli()}
		f.set = true
	}
	return f.info.DeviceID, nil
}

func (f *fakeIdentity) Info(ctx context.Context) (store.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return store.DeviceInfo{}, store.ErrNotFound
	}
	return f.info, nil
}

func (f *fakeIdentity) Save(ctx context.Context, info store.DeviceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	f.set = true
	f.saveCalls++
	return nil
}

// ---- helpers ----

func fixAt(lat, lon float64) pipeline.Fix {
	return pipeline.Fix{Valid: true, Lat: lat, Lon: lon, SpeedKmh: 30, Bearing: 10}
}

func newTestEngine(gpsF *fakeGPS, rep *fakeReporter, id *fakeIdentity) *Engine {
	return New(gpsF, newFakeIMU(), fakeBattery(90), id, rep, testLogger(),
		Config{Interval: 20 * time.Millisecond, SendTimeout: time.Second})
}

// ---- tests ----

func TestEngineStartStopLifecycle(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{fixAt(35.0, 135.0)}}
	e := newTestEngine(gpsF, newFakeReporter(), &fakeIdentity{})

	assert.Equal(t, StateStopped, e.State())
	require.NoError(t, e.Start())
	assert.Equal(t, StateRunning, e.State())
	assert.ErrorIs(t, e.Start(), ErrAlreadyRunning)

	e.Stop()
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, gpsF.closed)

	// idempotente
	e.Stop()
	assert.Equal(t, StateStopped, e.State())
}

func TestEngineRefusesToStartWithoutLocation(t *testing.T) {
	gpsF := &fakeGPS{connErr: errors.New("permission denied")}
	e := newTestEngine(gpsF, newFakeReporter(), &fakeIdentity{})

	err := e.Start()
	require.Error(t, err)
	assert.Equal(t, StateStopped, e.State())
}

func TestEngineFirstReportSuppressedThenDelta(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{
		fixAt(35.0, 135.0),
		fixAt(35.001, 135.001),
	}}
	rep := newFakeReporter()
	e := newTestEngine(gpsF, rep, &fakeIdentity{})

	require.NoError(t, e.Start())
	rep.waitReports(t, 2)
	e.Stop()

	got := rep.captured()
	require.GreaterOrEqual(t, len(got), 2)

	// primer reporte tras el arranque: sin delta físico
	assert.Equal(t, 0, got[0].Distance)
	assert.Equal(t, 0, got[0].TimeGap)
	assert.Equal(t, 0, got[0].CalculatedSpeed)
	assert.Equal(t, 35.0, got[0].Lat)

	// segundo reporte: delta contra el primer fix confirmado
	want := int(pipeline.Hubeny(35.0, 135.0, 35.001, 135.001))
	assert.Equal(t, want, got[1].Distance)
}

func TestEngineFailedReportDoesNotAdvancePrevFix(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{
		fixAt(35.0, 135.0),   // ok: queda como prev
		fixAt(35.001, 135.0), // falla: prev no avanza
		fixAt(35.002, 135.0), // ok: delta acumulado desde el primero
	}}
	rep := newFakeReporter()
	rep.failIdx[1] = true
	e := newTestEngine(gpsF, rep, &fakeIdentity{})

	require.NoError(t, e.Start())
	rep.waitReports(t, 3)
	e.Stop()

	got := rep.captured()
	require.GreaterOrEqual(t, len(got), 3)

	wantFailed := int(pipeline.Hubeny(35.0, 135.0, 35.001, 135.0))
	assert.Equal(t, wantFailed, got[1].Distance)

	// el tercer reporte cubre el gap completo, incluido el intento fallido
	wantAccum := int(pipeline.Hubeny(35.0, 135.0, 35.002, 135.0))
	assert.Equal(t, wantAccum, got[2].Distance)
}

func TestEngineSkipsInvalidFixes(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{
		{Valid: false},
		fixAt(35.0, 135.0),
	}}
	rep := newFakeReporter()
	e := newTestEngine(gpsF, rep, &fakeIdentity{})

	require.NoError(t, e.Start())
	rep.waitReports(t, 1)
	e.Stop()

	got := rep.captured()
	require.GreaterOrEqual(t, len(got), 1)
	assert.Equal(t, 35.0, got[0].Lat)
}

func TestEngineAccelLastValueWins(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{fixAt(35.0, 135.0)}}
	rep := newFakeReporter()
	imuF := newFakeIMU()
	e := New(gpsF, imuF, fakeBattery(77), &fakeIdentity{}, rep, testLogger(),
		Config{Interval: 30 * time.Millisecond, SendTimeout: time.Second})

	require.NoError(t, e.Start())
	imuF.push(pipeline.AccelSample{X: 1, Y: 1, Z: 1})
	imuF.push(pipeline.AccelSample{X: 5, Y: 6, Z: 7})
	rep.waitReports(t, 1)
	e.Stop()

	got := rep.captured()
	require.GreaterOrEqual(t, len(got), 1)
	assert.Equal(t, 5, got[0].AccelX)
	assert.Equal(t, 6, got[0].AccelY)
	assert.Equal(t, 7, got[0].AccelZ)
	assert.Equal(t, 77, got[0].Battery)
}

func TestSetCarIDPersistsConfirmedID(t *testing.T) {
	rep := newFakeReporter()
	id := &fakeIdentity{}
	e := newTestEngine(&fakeGPS{}, rep, id)

	confirmed, err := e.SetCarID(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 9, confirmed)

	info, err := id.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, info.CarID)
	assert.Equal(t, "dev-test", info.DeviceID)
}

func TestSetCarIDBackendFailureKeepsState(t *testing.T) {
	rep := newFakeReporter()
	rep.regErr = errors.New("timeout")
	id := &fakeIdentity{}
	require.NoError(t, id.Save(context.Background(), store.DeviceInfo{
		DeviceID: "dev-test", CarID: 3, Timestamp: 1,
	}))
	saves := id.saveCalls

	e := newTestEngine(&fakeGPS{}, rep, id)
	_, err := e.SetCarID(context.Background(), 9)
	require.Error(t, err)

	// nada persistido, el id anterior sigue vigente
	assert.Equal(t, saves, id.saveCalls)
	info, _ := id.Info(context.Background())
	assert.Equal(t, 3, info.CarID)
}

func TestEngineUsesUpdatedCarIDOnNextFix(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{fixAt(35.0, 135.0)}}
	rep := newFakeReporter()
	id := &fakeIdentity{}
	e := newTestEngine(gpsF, rep, id)

	require.NoError(t, e.Start())
	rep.waitReports(t, 1)

	_, err := e.SetCarID(context.Background(), 4)
	require.NoError(t, err)
	// drena hasta ver un reporte con el id nuevo
	deadline := time.After(3 * time.Second)
	for {
		rep.waitReports(t, 1)
		got := rep.captured()
		if got[len(got)-1].CarID == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("car id update never reached the loop")
		default:
		}
	}
	e.Stop()
}

func TestEngineLatestAndSubscribe(t *testing.T) {
	gpsF := &fakeGPS{fixes: []pipeline.Fix{fixAt(35.0, 135.0)}}
	rep := newFakeReporter()
	e := newTestEngine(gpsF, rep, &fakeIdentity{})

	_, ok := e.Latest()
	assert.False(t, ok)

	ch, unsub := e.Subscribe()
	defer unsub()

	require.NoError(t, e.Start())
	select {
	case r := <-ch:
		assert.Equal(t, 35.0, r.Lat)
	case <-time.After(3 * time.Second):
		t.Fatal("no report published to subscriber")
	}

	latest, ok := e.Latest()
	assert.True(t, ok)
	assert.Equal(t, 35.0, latest.Lat)
	e.Stop()
}
