package utilities

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// CreateLog guarda una línea cruda (NMEA, reporte) en un archivo diario
// bajo dir. Con dir vacío no hace nada: la captura cruda es opt-in.
func CreateLog(dir, prefix, message string) {
	if dir == "" {
		return
	}
	filename := filepath.Join(dir, prefix+"_"+time.Now().Format("20060102")+".log")

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Println("raw log mkdir:", err)
		return
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Println("raw log open:", err)
		return
	}
	defer f.Close()

	logLine := time.Now().Format("15:04:05") + " - " + message + "\n"
	if _, err := f.WriteString(logLine); err != nil {
		log.Println("raw log write:", err)
	}
}
