package pipeline

import "math"

// Constantes GRS80 (mismo elipsoide que usa el backend para sus cálculos).
const (
	grs80A  = 6378137.0           // semieje mayor (m)
	grs80E2 = 0.00669438002301188 // excentricidad al cuadrado
)

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Hubeny devuelve la distancia en metros sobre el elipsoide entre dos puntos.
// Aproximación de Hubeny: suficiente para deltas entre fixes consecutivos,
// no es una librería de geodesia general.
func Hubeny(lat1, lon1, lat2, lon2 float64) float64 {
	my := deg2rad((lat1 + lat2) / 2.0)
	dy := deg2rad(lat1 - lat2)
	dx := deg2rad(lon1 - lon2)

	// radio de curvatura del primer vertical (este-oeste)
	sinMy := math.Sin(my)
	w := math.Sqrt(1.0 - grs80E2*sinMy*sinMy)
	n := grs80A / w

	// radio de curvatura del meridiano (norte-sur)
	m := grs80A * (1 - grs80E2) / (w * w * w)

	dym := dy * m
	dxncos := dx * n * math.Cos(my)
	return math.Sqrt(dym*dym + dxncos*dxncos)
}
