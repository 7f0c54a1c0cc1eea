// Package health serves liveness and readiness checks for the daemon.
//
// # Endpoints
//
//   - /healthz: the process is running
//   - /readyz: every registered check passes (last run, history database)
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCritical("history", health.PingCheck(store.Ping))
//	checker.RegisterCheck("last_run", health.LastRunCheck(store, 26*time.Hour))
//	checker.Register(mux, version, commit, buildTime)
package health
