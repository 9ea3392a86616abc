// Package metrics exports fireplace state and connection counters to
// Prometheus.
//
// State gauges are refreshed from a coordinator observer; counters are
// read from the coordinator diagnostics at scrape time.
//
//	exp := metrics.New(cfg.Fireplace.DeviceID)
//	detach := exp.Attach(coordinator)
//	defer detach()
//	router.Handle("/metrics", exp.Handler())
package metrics
