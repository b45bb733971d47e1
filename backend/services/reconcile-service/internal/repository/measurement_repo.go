package repository

import (
	"context"
	"database/sql"
	"fmt"

	libdb "expolis/backend/libs/db"
	"expolis/backend/services/reconcile-service/internal/models"
)

// Measurements are matched through node_sensors because exports identify the node
// by its mqtt topic number, not by the node_sensors primary key.
const postgresCountQuery = `
	SELECT COUNT(*)
	FROM measurement_properties
	INNER JOIN node_sensors ON measurement_properties.nodeID = node_sensors.ID
	WHERE node_sensors.mqtt_topic_number = CAST($1 AS INTEGER)
	  AND when_ = CAST($2 AS TIMESTAMP)
	  AND latitude = CAST($3 AS DOUBLE PRECISION)
	  AND longitude = CAST($4 AS DOUBLE PRECISION)
`

// SQLite keeps timestamps as text in the store layout, so when_ is compared as is.
const sqliteCountQuery = `
	SELECT COUNT(*)
	FROM measurement_properties
	INNER JOIN node_sensors ON measurement_properties.nodeID = node_sensors.ID
	WHERE node_sensors.mqtt_topic_number = $1
	  AND when_ = $2
	  AND latitude = $3
	  AND longitude = $4
`

// MeasurementRepository answers read-only existence queries against the store.
type MeasurementRepository struct {
	db    *sql.DB
	query string
}

// NewMeasurementRepository returns repository for the given driver dialect.
func NewMeasurementRepository(db *sql.DB, driver string) (*MeasurementRepository, error) {
	switch driver {
	case "", libdb.DriverPostgres:
		return &MeasurementRepository{db: db, query: postgresCountQuery}, nil
	case libdb.DriverSQLite:
		return &MeasurementRepository{db: db, query: sqliteCountQuery}, nil
	default:
		return nil, fmt.Errorf("repository: unsupported driver %q", driver)
	}
}

// CountMatching returns how many persisted measurements match key.
func (r *MeasurementRepository) CountMatching(ctx context.Context, key models.MeasurementKey) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, r.query,
		key.SensorID,
		key.Timestamp,
		key.Latitude,
		key.Longitude,
	).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
