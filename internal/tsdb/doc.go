// Package tsdb writes device signal strength to InfluxDB v2 as a time series.
//
// Writes are non-blocking and batched by the InfluxDB client. Errors from the
// background writer are delivered through SetOnError.
package tsdb
