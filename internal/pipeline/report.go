package pipeline

import "time"

// Fix es una lectura GPS puntual, ya normalizada (velocidad en km/h).
type Fix struct {
	Valid    bool
	Lat      float64
	Lon      float64
	SpeedKmh float64
	Bearing  float64
	Time     time.Time
}

// AccelSample es la última muestra del acelerómetro (3 ejes, m/s²).
// Se sobreescribe en cada evento del sensor; last-value-wins.
type AccelSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PrevState es el fix anterior que guarda el dispatcher. Sólo se avanza
// cuando el backend confirma el envío del reporte.
type PrevState struct {
	Lat        float64
	Lon        float64
	TimeMillis int64
	Set        bool
}

// Report es el registro de telemetría tal como lo espera ocs_insert.php.
// Los campos enteros van truncados igual que en la app original.
type Report struct {
	HeartRate       int     `json:"rate"` // reservado, siempre 0
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	CarID           int     `json:"t_num"`
	Speed           int     `json:"speed"`
	Distance        int     `json:"distance"`
	TimeGap         int     `json:"timeGap"`
	Bearing         int     `json:"bearing"`
	CalculatedSpeed int     `json:"calculatedSpeed"`
	AccelX          int     `json:"user_acceleration_x"`
	AccelY          int     `json:"user_acceleration_y"`
	AccelZ          int     `json:"user_acceleration_z"`
	Battery         int     `json:"battery"`
	LocalTime       string  `json:"localTime"`
}

const localTimeLayout = "2006-01-02 15:04:05"

// BuildReport arma el registro de telemetría para un fix.
//
// distance sale de Hubeny contra el fix anterior y timeGap en segundos
// enteros; calculatedSpeed = (distance/timeGap)*3.6 como contraste de la
// velocidad que reporta el GPS. Si todavía no hay fix anterior los tres
// derivados van en 0 (el primer sample tras un arranque no tiene delta
// físico que reportar). Con timeGap 0 calculatedSpeed también es 0: es una
// métrica derivada, no vale la pena propagar un error por ella.
func BuildReport(prev PrevState, fix Fix, accel AccelSample, carID, battery int, now time.Time) Report {
	var distance, calcSpeed float64
	var timeGap int64

	if prev.Set {
		distance = Hubeny(prev.Lat, prev.Lon, fix.Lat, fix.Lon)
		timeGap = (now.UnixMilli() - prev.TimeMillis) / 1000
		if timeGap > 0 {
			calcSpeed = distance / float64(timeGap) * 3.6
		}
	}

	return Report{
		HeartRate:       0,
		Lat:             fix.Lat,
		Lon:             fix.Lon,
		CarID:           carID,
		Speed:           int(fix.SpeedKmh),
		Distance:        int(distance),
		TimeGap:         int(timeGap),
		Bearing:         int(fix.Bearing),
		CalculatedSpeed: int(calcSpeed),
		AccelX:          int(accel.X),
		AccelY:          int(accel.Y),
		AccelZ:          int(accel.Z),
		Battery:         battery,
		LocalTime:       now.Format(localTimeLayout),
	}
}
