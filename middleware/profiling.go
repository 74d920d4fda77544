package middleware

import (
	"github.com/grafana/pyroscope-go"

	"github.com/duynhne/account-dashboard/config"
)

var profiler *pyroscope.Profiler

// InitProfiling starts continuous profiling to Pyroscope.
func InitProfiling(cfg config.Config) error {
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Service.Name,
		ServerAddress:   cfg.Profiling.Endpoint,
		Tags: map[string]string{
			"env":     cfg.Service.Env,
			"version": cfg.Service.Version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return err
	}
	profiler = p
	return nil
}

// StopProfiling flushes and stops the profiler, if running.
func StopProfiling() {
	if profiler != nil {
		_ = profiler.Stop()
	}
}
