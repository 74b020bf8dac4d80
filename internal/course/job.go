package course

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobKind names the two job families; it is also the queue message discriminator.
type JobKind string

const (
	KindSyllabus JobKind = "syllabus"
	KindContent  JobKind = "content"
)

// JobState is the lifecycle shared by both job tables.
type JobState struct {
	Status       JobStatus  `gorm:"type:varchar(16);index;not null" json:"status"`
	Retries      int        `gorm:"not null" json:"retries"`
	MaxRetries   int        `gorm:"not null" json:"max_retries"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type SyllabusJob struct {
	ID                    string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	CourseConfigurationID string `gorm:"size:36;index;not null" json:"course_configuration_id"`

	JobState `gorm:"embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyllabusJob) TableName() string { return "syllabus_generation_jobs" }

type ContentJob struct {
	ID                    string      `gorm:"primaryKey;size:26" json:"id"`
	CourseConfigurationID string      `gorm:"size:36;not null;index:idx_content_job_key,priority:1" json:"course_configuration_id"`
	ModuleIndex           int         `gorm:"not null;index:idx_content_job_key,priority:2" json:"module_index"`
	TopicIndex            int         `gorm:"not null;index:idx_content_job_key,priority:3" json:"topic_index"`
	ContentType           ContentType `gorm:"type:varchar(16);not null;index:idx_content_job_key,priority:4" json:"content_type"`
	Prompt                string      `gorm:"type:text" json:"prompt"`

	// Filled when completed
	ResultContentID *string `gorm:"size:36" json:"result_content_id"`

	JobState `gorm:"embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ContentJob) TableName() string { return "content_generation_jobs" }

// ContentKey locates a pending content job when no job id is supplied.
type ContentKey struct {
	CourseID    string
	ModuleIndex int
	TopicIndex  int
	ContentType ContentType
}

// JobUpdate carries the optional fields written alongside a status change.
type JobUpdate struct {
	ErrorMessage    *string
	ClearError      bool
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Retries         *int
	ResultContentID *string
}
