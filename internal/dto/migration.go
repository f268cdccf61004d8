package dto

// LegacyMigrationEntry is the outcome for one slot of a legacy class schedule.
type LegacyMigrationEntry struct {
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	Raw       string `json:"raw"`
	DayOfWeek string `json:"day_of_week,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Legacy migration statuses.
const (
	LegacyStatusCreated     = "created"
	LegacyStatusPlanned     = "planned"
	LegacyStatusExisting    = "existing"
	LegacyStatusConflict    = "conflict"
	LegacyStatusUnparseable = "unparseable"
)

// LegacyMigrationReport summarises a legacy schedule migration run.
type LegacyMigrationReport struct {
	DryRun      bool                   `json:"dry_run"`
	Classes     int                    `json:"classes"`
	Created     int                    `json:"created"`
	Existing    int                    `json:"existing"`
	Conflicts   int                    `json:"conflicts"`
	Unparseable int                    `json:"unparseable"`
	Entries     []LegacyMigrationEntry `json:"entries"`
}
