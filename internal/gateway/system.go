package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SystemStats is the payload of GET /api/system.
type SystemStats struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPULoad5    float64 `json:"cpu_load_5"`
	CPULoad15   float64 `json:"cpu_load_15"`
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
	InFlight    int64   `json:"optimizations_in_flight"`
	WSClients   int64   `json:"ws_clients"`
	TS          string  `json:"ts"`
}

// collectSystem gathers process and host load figures. Load averages are
// left at zero on hosts without /proc.
func collectSystem(start, now time.Time) SystemStats {
	s := SystemStats{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(now.Sub(start).Seconds()),
		TS:         now.UTC().Format(time.RFC3339Nano),
	}
	s.CPULoad1, s.CPULoad5, s.CPULoad15 = readLoadAvg("/proc/loadavg")

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}

func readLoadAvg(path string) (l1, l5, l15 float64) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 3 {
		return 0, 0, 0
	}
	out := make([]float64, 3)
	for i := range out {
		if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
			out[i] = v
		}
	}
	return out[0], out[1], out[2]
}
