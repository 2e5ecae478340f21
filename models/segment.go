package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SegmentType distinguishes filter-driven segments from curated ones
type SegmentType string

const (
	SegmentTypeDynamic SegmentType = "dynamic"
	SegmentTypeStatic  SegmentType = "static"
)

// Valid checks if the segment type is valid
func (t SegmentType) Valid() bool {
	return t == SegmentTypeDynamic || t == SegmentTypeStatic
}

// FilterTree is the jsonb-backed root of a segment's filter. It wraps the
// root node so the driver.Valuer method does not clash with the node's
// condition fields; on the wire and in the column it is the bare node.
type FilterTree struct {
	Root FilterNode
}

// MarshalJSON implements the json.Marshaler interface for FilterTree
func (t FilterTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Root)
}

// UnmarshalJSON implements the json.Unmarshaler interface for FilterTree
func (t *FilterTree) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.Root)
}

// Value implements the driver.Valuer interface for FilterTree
func (t FilterTree) Value() (driver.Value, error) {
	return json.Marshal(t.Root)
}

// Scan implements the sql.Scanner interface for FilterTree
func (t *FilterTree) Scan(value any) error {
	if value == nil {
		*t = FilterTree{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into FilterTree", value)
	}

	return json.Unmarshal(bytes, &t.Root)
}

// Node returns the tree as an evaluatable filter node
func (t *FilterTree) Node() *FilterNode {
	return &t.Root
}

// Segment represents a named, filterable or manually curated set of
// contacts. ContactCount is only trusted as of LastCalculatedAt; callers
// needing exact membership trigger recalculation.
type Segment struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	WorkspaceID uint        `gorm:"not null;index:idx_segments_workspace_id" json:"workspace_id"`
	Name        string      `gorm:"size:255;not null" json:"name"`
	Type        SegmentType `gorm:"type:varchar(16);not null;default:'dynamic'" json:"type"`

	Filter    FilterTree    `gorm:"type:jsonb" json:"filter"`
	MemberIDs pq.Int64Array `gorm:"type:bigint[]" json:"member_ids,omitempty"`

	ContactCount     int64      `gorm:"not null;default:0" json:"contact_count"`
	LastCalculatedAt *time.Time `json:"last_calculated_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Segment) TableName() string {
	return "segments"
}

// SegmentFilter represents filter criteria for segments
type SegmentFilter struct {
	ID          *uint        `json:"id,omitempty"`
	WorkspaceID *uint        `json:"workspace_id,omitempty"`
	Type        *SegmentType `json:"type,omitempty"`
	Name        *string      `json:"name,omitempty"`
}
