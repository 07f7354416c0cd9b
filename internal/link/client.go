package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tracker-agent/internal/pipeline"
)

// Rutas del backend Ohtomi (contrato fijo, PHP plano).
const (
	pathInsert     = "androidApp/ocs_insert.php"
	pathInsertIMEI = "androidApp/ocs_insertIMEI.php"
	pathSensorRead = "co2/dbread.php"
	pathToken      = "deviceTokenA.php"
)

// BackendError es un status no-2xx del backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected request: status %d: %s", e.Status, e.Body)
}

// Client es el único salto de salida hacia el backend. No muta estado
// local: el que llama decide qué persistir según el resultado.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

func New(baseURL string, timeout time.Duration, lg *slog.Logger) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Client{
		http: hc,
		log:  lg.With("component", "link"),
	}
}

// SendLocationData envía un reporte de telemetría. Éxito == HTTP 2xx;
// cualquier otra cosa vuelve como error con su causa.
func (c *Client) SendLocationData(ctx context.Context, r pipeline.Report) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"rate":                strconv.Itoa(r.HeartRate),
			"lat":                 strconv.FormatFloat(r.Lat, 'f', -1, 64),
			"lon":                 strconv.FormatFloat(r.Lon, 'f', -1, 64),
			"t_num":               strconv.Itoa(r.CarID),
			"speed":               strconv.Itoa(r.Speed),
			"distance":            strconv.Itoa(r.Distance),
			"timeGap":             strconv.Itoa(r.TimeGap),
			"bearing":             strconv.Itoa(r.Bearing),
			"calculatedSpeed":     strconv.Itoa(r.CalculatedSpeed),
			"user_acceleration_x": strconv.Itoa(r.AccelX),
			"user_acceleration_y": strconv.Itoa(r.AccelY),
			"user_acceleration_z": strconv.Itoa(r.AccelZ),
			"battery":             strconv.Itoa(r.Battery),
			"localTime":           r.LocalTime,
		}).
		Get(pathInsert)
	if err != nil {
		return fmt.Errorf("send location data: %w", err)
	}
	if !resp.IsSuccess() {
		return &BackendError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}
	return nil
}

// RegisterCarID pide al backend resolver/confirmar el vehículo asociado al
// dispositivo y devuelve el id confirmado. El parámetro se llama IMEI
// porque el endpoint lo fija así; hoy viaja el device id de plataforma.
func (c *Client) RegisterCarID(ctx context.Context, deviceID string, carID int) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"IMEI":  deviceID,
			"t_num": strconv.Itoa(carID),
		}).
		Get(pathInsertIMEI)
	if err != nil {
		return 0, fmt.Errorf("register car id: %w", err)
	}
	if !resp.IsSuccess() {
		return 0, &BackendError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}

	body := strings.TrimSpace(string(resp.Body()))
	// el body es el id de vehículo: entero plano, o el mismo entero
	// envuelto en la lista JSON que emitía la versión vieja del PHP
	if id, err := strconv.Atoi(body); err == nil {
		return id, nil
	}
	var bindings []carBinding
	if err := json.Unmarshal([]byte(body), &bindings); err == nil && len(bindings) > 0 {
		return bindings[0].CarID, nil
	}
	return 0, fmt.Errorf("register car id: unparseable response %q", body)
}

// GetSensorReadings trae hasta limit lecturas recientes de los sensores
// del vehículo.
func (c *Client) GetSensorReadings(ctx context.Context, carID, limit int) ([]SensorReading, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"carId": strconv.Itoa(carID),
			"limit": strconv.Itoa(limit),
		}).
		Get(pathSensorRead)
	if err != nil {
		return nil, fmt.Errorf("get sensor readings: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &BackendError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}

	var readings []SensorReading
	if err := json.Unmarshal(resp.Body(), &readings); err != nil {
		return nil, fmt.Errorf("get sensor readings: decode: %w", err)
	}
	return readings, nil
}

// PostDeviceToken registra un token de notificaciones push. Fire-and-forget
// para el que llama, pero el fallo igual se reporta.
func (c *Client) PostDeviceToken(ctx context.Context, token string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(token).
		Post(pathToken)
	if err != nil {
		return fmt.Errorf("post device token: %w", err)
	}
	if !resp.IsSuccess() {
		return &BackendError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}
	return nil
}
