package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Sample is one decoded point from a range query.
type Sample struct {
	Time  time.Time
	Value float64
}

// rangeResponse is the Prometheus query_range envelope.
type rangeResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
	Data      struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any          `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

var rollupFns = map[string]string{
	"mean": "avg_over_time",
	"max":  "max_over_time",
	"min":  "min_over_time",
	"sum":  "sum_over_time",
	"last": "last_over_time",
}

// Selector builds a PromQL expression for one series. Line-protocol writes
// land in VictoriaMetrics as {measurement}_{field}; the series id matches the
// "measurement" label, optionally scoped by device ("battery-01/soc").
// A known fn wraps the selector in the matching *_over_time rollup over
// window, which should equal the query step.
func Selector(measurement, field, seriesID, fn string, window time.Duration) string {
	var labels string
	if device, metric, ok := strings.Cut(seriesID, "/"); ok {
		labels = fmt.Sprintf(`device_id=%q,measurement=%q`, device, metric)
	} else {
		labels = fmt.Sprintf(`measurement=%q`, seriesID)
	}
	expr := fmt.Sprintf("%s_%s{%s}", measurement, field, labels)

	if rollup, ok := rollupFns[fn]; ok && window > 0 {
		return fmt.Sprintf("%s(%s[%ss])", rollup, expr, formatStepSeconds(window))
	}
	return expr
}

// QueryRange executes a PromQL range query and returns the raw JSON body.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrQueryFailed)
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive", ErrQueryFailed)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrQueryFailed)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", formatUnixSeconds(start))
	params.Set("end", formatUnixSeconds(end))
	params.Set("step", formatStepSeconds(step))

	return c.doQuery(ctx, "/api/v1/query_range", params)
}

// QueryRangeSamples runs QueryRange and flattens every returned series into
// one time-ordered sample list.
func (c *Client) QueryRangeSamples(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]Sample, error) {
	body, err := c.QueryRange(ctx, query, start, end, step)
	if err != nil {
		return nil, err
	}
	return decodeMatrix(body)
}

func decodeMatrix(body []byte) ([]Sample, error) {
	var resp rangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrQueryFailed, err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%w: %s: %s", ErrQueryFailed, resp.ErrorType, resp.Error)
	}

	var samples []Sample
	for _, series := range resp.Data.Result {
		for _, pair := range series.Values {
			ts, ok := pair[0].(float64)
			if !ok {
				continue
			}
			raw, ok := pair[1].(string)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			sec := int64(ts)
			nsec := int64((ts - float64(sec)) * float64(time.Second))
			samples = append(samples, Sample{Time: time.Unix(sec, nsec).UTC(), Value: v})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

func (c *Client) doQuery(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.url + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 10 << 20 // 10 MB
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrQueryFailed, resp.StatusCode)
	}

	return json.RawMessage(body), nil
}

func formatUnixSeconds(t time.Time) string {
	seconds := float64(t.UnixNano()) / float64(time.Second)
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func formatStepSeconds(step time.Duration) string {
	return strconv.FormatFloat(step.Seconds(), 'f', -1, 64)
}
