package model

import (
	"fmt"
	"time"
)

// LearningSnapshot is the opaque state blob exported by the
// learned-estimation services (duration history, optimization feedback,
// user preferences). The sync engine persists and restores it as a
// single atomic unit and never interprets Data.
type LearningSnapshot struct {
	Data        []byte    `json:"data"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int       `json:"version"`
}

// Validate checks that the snapshot carries a payload.
func (s *LearningSnapshot) Validate() error {
	if len(s.Data) == 0 {
		return fmt.Errorf("data is required")
	}
	if s.Version <= 0 {
		return fmt.Errorf("version must be positive")
	}
	return nil
}
