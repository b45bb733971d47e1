package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Summary is the last reconciliation outcome of a sensor node.
type Summary struct {
	RunID         string    `json:"run_id"`
	SensorID      int       `json:"sensor_id"`
	File          string    `json:"file"`
	TotalRows     int       `json:"total_rows"`
	MissingRows   int       `json:"missing_rows"`
	DuplicateRows int       `json:"duplicate_rows"`
	MalformedRows int       `json:"malformed_rows"`
	OK            bool      `json:"ok"`
	Report        string    `json:"report"`
	FinishedAt    time.Time `json:"finished_at"`
}

// SummaryStore keeps the latest summary per sensor node.
type SummaryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryStore returns redis-backed store.
func NewSummaryStore(client *redis.Client, ttl time.Duration) *SummaryStore {
	return &SummaryStore{client: client, ttl: ttl}
}

func summaryKey(sensorID int) string {
	return fmt.Sprintf("reconcile:sensor:%d:last", sensorID)
}

// Save overwrites the summary of the sensor node.
func (s *SummaryStore) Save(ctx context.Context, summary Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, summaryKey(summary.SensorID), data, s.ttl).Err()
}

// Get returns the last summary stored for sensorID.
func (s *SummaryStore) Get(ctx context.Context, sensorID int) (*Summary, error) {
	result, err := s.client.Get(ctx, summaryKey(sensorID)).Result()
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal([]byte(result), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
