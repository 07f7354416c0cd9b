package link

// SensorReading es una lectura ambiental de un sensor montado en vehículo,
// tal como la devuelve co2/dbread.php. Sólo lectura para este agente.
type SensorReading struct {
	CO2               string  `json:"co2"`
	Temperature       float64 `json:"temperature"`
	Humidity          float64 `json:"humidity"`
	Pressure          float64 `json:"pressure"`
	Build             int     `json:"build"`
	SystemVersion     string  `json:"systemVersion"`
	DeviceID          string  `json:"deviceId"`
	DeviceName        string  `json:"deviceName"`
	IPhone            int     `json:"iPhone"`
	LowPower          int     `json:"lowPower"`
	AutoCalibration   int     `json:"autoCalibration"`
	WifiEnd           int     `json:"wifiEnd"`
	CO2Sensor         int     `json:"co2Sensor"`
	TemperatureSensor int     `json:"temperatureSensor"`
	RSSI              int     `json:"rssi"`
	CarID             int     `json:"carId"`
	IsFront           int     `json:"isFront"`
	Modified          string  `json:"modified"`
}

// carBinding es la respuesta de ocs_insertIMEI.php: el vehículo que el
// backend confirma para el dispositivo.
type carBinding struct {
	CarID int `json:"t_num"`
}
