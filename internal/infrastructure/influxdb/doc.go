// Package influxdb provides InfluxDB connectivity for Gray Logic Advisor.
//
// It wraps influxdb-client-go v2 for two jobs:
//   - reading historical series through Flux (baselines for deviation detection)
//   - writing the advisor's own outputs back (day/night aggregates, detected
//     deviations, run summaries) so they can be charted next to the raw data
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	points, err := client.QueryWindow(ctx, influxdb.WindowQuery{...})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched; their errors arrive through the SetOnError callback.
package influxdb
