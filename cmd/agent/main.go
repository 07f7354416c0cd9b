package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tracker-agent/internal/config"
	"tracker-agent/internal/dispatcher"
	"tracker-agent/internal/gps"
	"tracker-agent/internal/imu"
	"tracker-agent/internal/link"
	"tracker-agent/internal/observability"
	"tracker-agent/internal/platform"
	"tracker-agent/internal/server"
	"tracker-agent/internal/store"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	logger.Info("Starting tracker-agent...", "backend", cfg.BackendBaseURL, "listen", cfg.ListenAddr)

	// Inicializar Redis antes que nada: sin identidad no hay agente
	kv, err := store.NewRedisKV(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	identity := store.NewIdentity(kv, logger)

	backend := link.New(cfg.BackendBaseURL, cfg.BackendTimeout, logger)

	var gpsProv gps.Provider
	switch cfg.GPSMode {
	case "serial":
		gpsProv = gps.NewSerial(gps.SerialConfig{
			PortPath: cfg.GPSPort,
			BaudRate: cfg.GPSBaud,
			RawDir:   cfg.RawLogDir,
		}, logger)
	default:
		gpsProv = gps.NewDemo()
	}

	var imuProv imu.Provider
	switch cfg.IMUMode {
	case "mqtt":
		imuProv = imu.NewMQTT(imu.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			Username: cfg.MQTTUser,
			Password: cfg.MQTTPass,
		}, logger)
	default:
		imuProv = imu.NewDemoIMU()
	}

	var battery platform.Battery
	switch cfg.BatteryMode {
	case "static":
		battery = platform.StaticBattery(100)
	default:
		battery = platform.NewSysfsBattery(cfg.BatteryPath, logger)
	}

	engine := dispatcher.New(gpsProv, imuProv, battery, identity, backend, logger,
		dispatcher.Config{Interval: cfg.SampleInterval, SendTimeout: cfg.BackendTimeout})

	mux := http.NewServeMux()
	observability.Register(mux)
	server.New(engine, backend, identity, logger).Routes(mux)

	if cfg.AutoStart {
		if err := engine.Start(); err != nil {
			// el operador puede arrancarlo después vía /api/start
			logger.Error("engine autostart failed", "error", err)
		}
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	engine.Stop()
	_ = httpSrv.Close()
}
