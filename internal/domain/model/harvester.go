package model

import (
	"errors"
	"strings"
	"time"
)

// HarvesterConfig is the versioned, store-held configuration of one harvester.
// Updates must carry the version they were read at; a stale version is a conflict.
type HarvesterConfig struct {
	ID                  int64            `json:"id"                              db:"id"`
	Name                string           `json:"name"                            db:"name"`
	Enabled             bool             `json:"enabled"                         db:"enabled"`
	Schedule            string           `json:"schedule"                        db:"schedule"`
	Specification       JobSpecification `json:"specification"                   db:"specification"`
	FlowID              int64            `json:"flow_id"                         db:"flow_id"`
	SinkID              int64            `json:"sink_id"                         db:"sink_id"`
	NextPublicationDate *time.Time       `json:"next_publication_date,omitempty" db:"next_publication_date"`
	LastHarvested       *time.Time       `json:"last_harvested,omitempty"        db:"last_harvested"`
	Version             int64            `json:"version"                         db:"version"`
	UpdatedAt           time.Time        `json:"updated_at"                      db:"updated_at"`
}

// Validate checks fields required to run the harvester. Specification.DataFile is filled per run.
func (c *HarvesterConfig) Validate() error {
	if c == nil {
		return errors.New("harvester config is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(c.Schedule) == "" {
		return errors.New("schedule is required")
	}
	if !c.Specification.Format.Valid() {
		return errors.New("specification.format is invalid")
	}
	if c.FlowID <= 0 || c.SinkID <= 0 {
		return errors.New("flow_id and sink_id are required")
	}
	return nil
}
