// Package tsdb queries VictoriaMetrics for historical series.
//
// It speaks the Prometheus HTTP API (query_range) over net/http and decodes
// matrix results into timestamped samples. The advisor uses it as one of the
// two history backends for baseline queries.
//
// # Usage
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	samples, err := client.QueryRangeSamples(ctx,
//	    tsdb.Selector("device_metrics", "value", "water_flow", "max", time.Hour),
//	    start, end, time.Hour)
package tsdb
