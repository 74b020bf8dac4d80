package course

import (
	"time"

	"gorm.io/datatypes"
)

// CourseConfiguration is immutable after creation.
type CourseConfiguration struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string    `gorm:"size:64;index;not null" json:"owner_id"`
	Topic     string    `gorm:"type:text;not null" json:"topic"`
	Context   string    `gorm:"type:text" json:"context"`
	Depth     int       `gorm:"not null" json:"depth"`
	CreatedAt time.Time `json:"created_at"`
}

func (CourseConfiguration) TableName() string { return "course_configurations" }

type SyllabusStatus string

const (
	SyllabusPending    SyllabusStatus = "pending"
	SyllabusGenerating SyllabusStatus = "generating"
	SyllabusCompleted  SyllabusStatus = "completed"
	SyllabusFailed     SyllabusStatus = "failed"
)

// Syllabus is one-to-one with a course configuration.
type Syllabus struct {
	ID                    string                       `gorm:"primaryKey;size:36" json:"id"`
	CourseConfigurationID string                       `gorm:"size:36;uniqueIndex;not null" json:"course_configuration_id"`
	Modules               datatypes.JSONType[[]Module] `json:"modules"`
	Keywords              datatypes.JSONType[[]string] `json:"keywords"`
	Status                SyllabusStatus               `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt             time.Time                    `json:"created_at"`
	UpdatedAt             time.Time                    `json:"updated_at"`
}

func (Syllabus) TableName() string { return "syllabi" }

type Module struct {
	Summary string  `json:"summary" validate:"min=20,max=300"`
	Topics  []Topic `json:"topics" validate:"required,dive"`
}

type Topic struct {
	Summary  string   `json:"summary" validate:"min=10,max=200"`
	Keywords []string `json:"keywords" validate:"min=3,max=10,dive,required"`
	Content  string   `json:"content" validate:"min=100,max=2000"`
}

// SyllabusDraft is the validated shape of a generated syllabus.
type SyllabusDraft struct {
	Modules  []Module `json:"modules" validate:"required,dive"`
	Keywords []string `json:"keywords" validate:"min=5,max=20,dive,required"`
}

type ContentType string

const (
	ContentText        ContentType = "text"
	ContentImage       ContentType = "image"
	ContentVideo       ContentType = "video"
	ContentAudio       ContentType = "audio"
	ContentDocument    ContentType = "document"
	ContentInteractive ContentType = "interactive"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentVideo, ContentAudio, ContentDocument, ContentInteractive:
		return true
	}
	return false
}

type CitationType string

const (
	CitationAcademic      CitationType = "academic"
	CitationWeb           CitationType = "web"
	CitationBook          CitationType = "book"
	CitationArticle       CitationType = "article"
	CitationDocumentation CitationType = "documentation"
)

type Citation struct {
	ID         string       `json:"id" validate:"required"`
	Type       CitationType `json:"type" validate:"required,oneof=academic web book article documentation"`
	Title      string       `json:"title" validate:"required"`
	Authors    []string     `json:"authors,omitempty"`
	URL        string       `json:"url,omitempty"`
	Publisher  string       `json:"publisher,omitempty"`
	DOI        string       `json:"doi,omitempty"`
	Date       string       `json:"date,omitempty"`
	AccessDate string       `json:"access_date,omitempty"`
	Relevance  string       `json:"relevance" validate:"required"`
	Excerpt    string       `json:"excerpt,omitempty"`
}

// GeneratedContent is the validated shape of one generated content item.
type GeneratedContent struct {
	Title       string     `json:"title" validate:"min=10,max=200"`
	Description string     `json:"description,omitempty" validate:"omitempty,min=20,max=500"`
	Content     string     `json:"content" validate:"min=500,max=8000"`
	Citations   []Citation `json:"citations" validate:"min=3,max=15,dive"`
}

// TextData is the content_data payload of a text content item.
type TextData struct {
	Content   string     `json:"content"`
	Format    string     `json:"format"`
	Citations []Citation `json:"citations"`
}

type ContentItem struct {
	ID                    string                       `gorm:"primaryKey;size:36" json:"id"`
	CourseConfigurationID string                       `gorm:"size:36;not null;index:idx_content_topic,priority:1;uniqueIndex:idx_content_order,priority:1" json:"course_configuration_id"`
	ModuleIndex           int                          `gorm:"not null;index:idx_content_topic,priority:2;uniqueIndex:idx_content_order,priority:2" json:"module_index"`
	TopicIndex            int                          `gorm:"not null;index:idx_content_topic,priority:3;uniqueIndex:idx_content_order,priority:3" json:"topic_index"`
	ContentType           ContentType                  `gorm:"type:varchar(16);not null" json:"content_type"`
	Title                 string                       `gorm:"type:varchar(255);not null" json:"title"`
	Description           string                       `gorm:"type:text" json:"description"`
	ContentData           datatypes.JSONType[TextData] `json:"content_data"`
	OrderIndex            int                          `gorm:"not null;uniqueIndex:idx_content_order,priority:4" json:"order_index"`
	CreatedAt             time.Time                    `json:"created_at"`
}

func (ContentItem) TableName() string { return "content_items" }
