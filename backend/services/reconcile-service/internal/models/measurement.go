package models

// TelemetryLine holds the raw fields of one data row of a sensor node export,
// after decimal commas have been turned into points.
type TelemetryLine struct {
	TopicNumber string
	Timestamp   string
	Latitude    string
	Longitude   string
}

// CandidateRecord is one normalized observation waiting for an existence check.
type CandidateRecord struct {
	Line      int     `json:"line"`
	SensorID  int     `json:"sensor_id"`
	Timestamp string  `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns the composite key used to look the record up in the store.
func (r CandidateRecord) Key() MeasurementKey {
	return MeasurementKey{
		SensorID:  r.SensorID,
		Timestamp: r.Timestamp,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// MeasurementKey matches a persisted measurement joined to its node sensor.
// SensorID is the mqtt topic number, Timestamp is rendered in the store format.
type MeasurementKey struct {
	SensorID  int
	Timestamp string
	Latitude  float64
	Longitude float64
}
