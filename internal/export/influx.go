package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

// DefaultMeasurement is the measurement name used when none is given.
const DefaultMeasurement = "mesonet"

// InfluxConfig is where Upload sends a batch.
type InfluxConfig struct {
	Addr      string
	Username  string
	Password  string
	Database  string
	Precision string
}

// Points converts rows to influx points. Rows without a timestamp or without
// any value are skipped, as influx rejects points with no fields.
func Points(rows []normalize.Row, measurement string) ([]*influx.Point, error) {
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	var points []*influx.Point
	for _, r := range rows {
		if !r.HasObservation() || r.DateTime == nil {
			continue
		}
		fields := make(map[string]interface{}, 2)
		if r.Value != nil {
			fields["value"] = *r.Value
		}
		if r.ValueString != nil {
			fields["value_string"] = *r.ValueString
		}
		if len(fields) == 0 {
			continue
		}

		tags := map[string]string{
			"stid":         r.STID,
			"variable":     r.Variable,
			"sensor_index": strconv.FormatUint(uint64(r.SensorIndex), 10),
			"is_derived":   strconv.FormatBool(r.IsDerived),
		}
		if r.Units != "" {
			tags["units"] = r.Units
		}

		p, err := influx.NewPoint(measurement, tags, fields, *r.DateTime)
		if err != nil {
			return nil, fmt.Errorf("point for %s %s: %w", r.STID, r.Variable, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Batch builds a batch of points for cfg.Database.
func Batch(rows []normalize.Row, measurement string, cfg InfluxConfig) (influx.BatchPoints, error) {
	precision := cfg.Precision
	if precision == "" {
		precision = "s"
	}
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  cfg.Database,
		Precision: precision,
	})
	if err != nil {
		return nil, err
	}

	points, err := Points(rows, measurement)
	if err != nil {
		return nil, err
	}
	bp.AddPoints(points)
	return bp, nil
}

// WriteLineProtocol writes the batch in influx line protocol, one point per line.
func WriteLineProtocol(w io.Writer, bp influx.BatchPoints) error {
	for _, p := range bp.Points() {
		if _, err := io.WriteString(w, p.PrecisionString(bp.Precision())+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Upload pings the server and writes the batch.
func Upload(cfg InfluxConfig, bp influx.BatchPoints) error {
	if cfg.Addr == "" {
		return errors.New("influx address is required")
	}
	c, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("create influx client: %w", err)
	}
	defer c.Close()

	if _, _, err := c.Ping(5 * time.Second); err != nil {
		return fmt.Errorf("ping influx: %w", err)
	}
	if err := c.Write(bp); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}
