// Package influx wraps the InfluxDB v1 client behind a small store interface
// used to push usage measurements.
package influx

import (
	"context"
	"time"

	influxdb "github.com/influxdata/influxdb/client/v2"
)

// Point represents a single row in a batch of measurements.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Timestamp   time.Time
}

// Store provides access to an InfluxDB database for writing usage metrics.
type Store interface {
	Database() string
	Ping(ctx context.Context, timeout time.Duration) error
	WriteBatch(ctx context.Context, points []Point) error
	Close() error
}

var _ Store = &influxDB{}

type influxDB struct {
	config   influxdb.HTTPConfig
	client   influxdb.Client
	database string
}

func defaultInfluxDB() *influxDB {
	return &influxDB{
		config: influxdb.HTTPConfig{
			Addr: "http://localhost:8086",
		},
		database: "coxstatus",
	}
}

// NewStore builds an instance of Store with some options.
func NewStore(opts ...StoreOption) (Store, error) {
	db := defaultInfluxDB()
	for _, apply := range opts {
		apply(db)
	}
	c, err := influxdb.NewHTTPClient(db.config)
	if err != nil {
		return nil, err
	}
	db.client = c
	return db, nil
}

func (db *influxDB) Database() string {
	return db.database
}

func (db *influxDB) Ping(_ context.Context, timeout time.Duration) error {
	_, _, err := db.client.Ping(timeout)
	return err
}

func (db *influxDB) WriteBatch(_ context.Context, points []Point) error {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:  db.database,
		Precision: "s",
	})
	if err != nil {
		return err
	}
	for _, point := range points {
		pt, err := influxdb.NewPoint(point.Measurement, point.Tags, point.Fields, point.Timestamp)
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}
	return db.client.Write(bp)
}

func (db *influxDB) Close() error {
	return db.client.Close()
}
