package domain

import "time"

// ImportRun records one finished commit pass of an import context.
type ImportRun struct {
	ID         string      `gorm:"type:text;primaryKey" json:"id"`
	ContextID  int64       `gorm:"not null;index:idx_import_runs_context" json:"context_id"`
	State      string      `gorm:"type:text;not null" json:"state"`
	Committed  int         `gorm:"default:0" json:"committed"`
	Failed     int         `gorm:"default:0" json:"failed"`
	Blocked    int         `gorm:"default:0" json:"blocked"`
	Errors     StringArray `gorm:"type:text" json:"errors,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName returns the database table name for ImportRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ImportRun) TableName() string {
	return "import_runs"
}
