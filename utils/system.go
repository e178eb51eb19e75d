package utils

import (
	"log/slog"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
)

// GetOptimalWorkerCount decides how many sites may be scanned at once.
// configValue is a positive number or "auto"; empty means 1. The result is
// never larger than siteCount, since a site is never scanned by two lanes.
func GetOptimalWorkerCount(configValue string, siteCount int, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	n := workerCount(configValue, logger)
	if siteCount > 0 && n > siteCount {
		n = siteCount
	}
	return n
}

func workerCount(configValue string, logger *slog.Logger) int {
	if configValue == "" {
		return 1
	}
	if manualWorkers, err := strconv.Atoi(configValue); err == nil && manualWorkers > 0 {
		return manualWorkers
	}
	if configValue != "auto" {
		logger.Warn("workers: invalid value, using auto", "value", configValue)
	}

	// Each lane drives its own Chrome tab; half the logical cores leaves room
	// for the browser processes themselves.
	cpuCores, err := cpu.Counts(true)
	if err != nil {
		logger.Warn("workers: could not detect CPU cores, using 2", "error", err)
		return 2
	}
	optimalCount := cpuCores / 2
	if optimalCount < 1 {
		optimalCount = 1
	}
	if optimalCount > 16 {
		optimalCount = 16
	}
	logger.Info("workers: auto", "cores", cpuCores, "workers", optimalCount)
	return optimalCount
}
