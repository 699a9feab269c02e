// Package config provides configuration for the remote-scan engine.
//
// EngineConfig holds the process-wide settings shared by every connector:
// transport timeouts, retry and circuit-breaker behaviour, rate limiting and
// observability. Options carries the per-server and per-table string options
// a connector receives from the host, and TableDefinition describes a scan or
// mutation in YAML form for the command line tool.
//
// # Loading
//
//	var def config.TableDefinition
//	if err := config.Load("charges.yaml", &def); err != nil {
//		log.Fatal(err)
//	}
//
// Load substitutes ${VAR_NAME} with the value of the environment variable
// when it is set. Placeholders naming unset variables are left untouched so
// that table templates such as "(select * from t where r = ${region})"
// survive loading.
package config
