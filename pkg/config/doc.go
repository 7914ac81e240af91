// Package config defines the configuration of a pgstream export and loads it
// from YAML.
//
// The configuration is organized into logical sections:
//   - Performance: worker count and buffering
//   - Timeouts: connection and whole-export timeouts
//   - Observability: logging, metrics and tracing
//   - Output: destination path, format and compression
//   - Columns: the columns every relation exports
//   - Assignments: connection descriptors and the relations read through each
//
// # Loading
//
// Values of the form ${VAR} are replaced with environment variables before
// the YAML is parsed, so secrets can stay out of the file:
//
//	name: weather
//	columns: [city, temp_lo, temp_hi]
//	assignments:
//	  - connection:
//	      hosts: [db1, db2]
//	      ports: [5432]
//	      user: reader
//	      password: ${WEATHER_DB_PASSWORD}
//	      database: weather
//	    relations:
//	      - schema: public
//	        table: weather_2024
//	      - query: SELECT * FROM weather_archive WHERE year < 2020
//
//	cfg, err := config.LoadExport("weather.yaml")
//
// LoadExport applies defaults for everything left unset and validates the
// result.
package config
