package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/customeros/mailmedic/internal/enum"
)

// JSONMap represents a JSON object that can be stored in PostgreSQL
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// BlacklistResults maps each probed DNSBL to its tri-state outcome.
// Stored as jsonb so the map stays typed on the Go side.
type BlacklistResults map[enum.Blacklist]enum.BlacklistStatus

func (b BlacklistResults) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *BlacklistResults) Scan(value interface{}) error {
	if value == nil {
		*b = make(BlacklistResults)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, b)
}

// AnyConfirmed reports whether any DNSBL returned a confirmed listing.
func (b BlacklistResults) AnyConfirmed() bool {
	for _, status := range b {
		if status == enum.BlacklistConfirmed {
			return true
		}
	}
	return false
}

// AnyUnreachable reports whether any probe failed to produce a verdict.
func (b BlacklistResults) AnyUnreachable() bool {
	for _, status := range b {
		if status == enum.BlacklistUnreachable {
			return true
		}
	}
	return false
}

// AllNotListed reports whether every configured DNSBL conclusively
// answered clean. An unreachable probe is not evidence of cleanliness.
func (b BlacklistResults) AllNotListed() bool {
	if len(b) == 0 {
		return false
	}
	for _, status := range b {
		if status != enum.BlacklistNotListed {
			return false
		}
	}
	return true
}

// Finding is a single issue discovered during an assessment run.
type Finding struct {
	Severity    enum.FindingSeverity `json:"severity"`
	Category    string               `json:"category"`
	EntityType  enum.EntityType      `json:"entityType"`
	Entity      string               `json:"entity"`
	Description string               `json:"description"`
	Remediation string               `json:"remediation"`
}

type Findings []Finding

func (f Findings) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *Findings) Scan(value interface{}) error {
	if value == nil {
		*f = Findings{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, f)
}
