package domain

type Unit struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Alert struct {
	ID                string         `json:"id"`
	UnitID            string         `json:"unit_id"`
	StudentRef        string         `json:"student_ref"`
	StudentName       string         `json:"student_name,omitempty"`
	ClassRef          *string        `json:"class_ref,omitempty"`
	OriginCategory    OriginCategory `json:"origin_category"`
	Description       string         `json:"description,omitempty"`
	ReportedBy        string         `json:"reported_by"`
	OccurredOn        string         `json:"occurred_on" format:"date"`
	RetentionDeadline *string        `json:"retention_deadline,omitempty" format:"date"`
	Status            AlertStatus    `json:"status"`
	KanbanColumn      Column         `json:"kanban_column"`
	CreatedAt         string         `json:"created_at" format:"date-time"`
	UpdatedAt         string         `json:"updated_at" format:"date-time"`
}

type Activity struct {
	ID                    string         `json:"id"`
	AlertID               string         `json:"alert_id"`
	Type                  ActivityType   `json:"type"`
	Description           string         `json:"description,omitempty"`
	ResponsiblePersonID   *string        `json:"responsible_person_id,omitempty"`
	ResponsiblePersonName *string        `json:"responsible_person_name,omitempty"`
	ResponsibleDepartment *Department    `json:"responsible_department,omitempty"`
	ResponsibleTeacherID  *string        `json:"responsible_teacher_id,omitempty"`
	Status                ActivityStatus `json:"status"`
	ScheduledDate         *string        `json:"scheduled_date,omitempty" format:"date"`
	StartTime             *string        `json:"start_time,omitempty"`
	EndTime               *string        `json:"end_time,omitempty"`
	PreviousActivityID    *string        `json:"previous_activity_id,omitempty"`
	BundleID              *string        `json:"bundle_id,omitempty"`
	BundleKind            *BundleKind    `json:"bundle_kind,omitempty"`
	CompletedBy           *string        `json:"completed_by,omitempty"`
	CompletedByName       *string        `json:"completed_by_name,omitempty"`
	CompletedAt           *string        `json:"completed_at,omitempty" format:"date-time"`
	CreatedBy             string         `json:"created_by"`
	CreatedAt             string         `json:"created_at" format:"date-time"`
}

// Completed reports whether the activity has been closed.
func (a Activity) Completed() bool {
	return a.Status == ActivityCompleted
}

type Card struct {
	ID            string         `json:"id"`
	AlertID       string         `json:"alert_id"`
	UnitID        string         `json:"unit_id"`
	Column        Column         `json:"column"`
	Priority      Priority       `json:"priority"`
	Tags          []string       `json:"tags"`
	Notes         string         `json:"notes,omitempty"`
	Attachments   []string       `json:"attachments"`
	DueDate       *string        `json:"due_date,omitempty" format:"date"`
	ResultOutcome *ResultOutcome `json:"result_outcome,omitempty"`
	FinalizedAt   *string        `json:"finalized_at,omitempty" format:"date-time"`
	FinalizedBy   *string        `json:"finalized_by,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	UpdatedAt     string         `json:"updated_at" format:"date-time"`
}

// Finalized reports whether the card outcome has been locked.
func (c Card) Finalized() bool {
	return c.ResultOutcome != nil
}

type CardHistoryEntry struct {
	ID      int64  `json:"id"`
	CardID  string `json:"card_id"`
	TS      string `json:"ts" format:"date-time"`
	ActorID string `json:"actor_id"`
	Line    string `json:"line"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UnitID     string `json:"unit_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Staff struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
