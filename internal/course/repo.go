package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrJobNotClaimable = errors.New("job is not pending or has no attempts left")
)

// Repo is the gorm-backed Database Gateway.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Course configuration / syllabus

func (r *Repo) GetCourseConfiguration(ctx context.Context, courseID string) (*CourseConfiguration, error) {
	var c CourseConfiguration
	if err := r.db.WithContext(ctx).First(&c, "id = ?", courseID).Error; err != nil {
		return nil, notFound(err, "course configuration "+courseID)
	}
	return &c, nil
}

func (r *Repo) GetSyllabus(ctx context.Context, courseID string) (*Syllabus, error) {
	var s Syllabus
	if err := r.db.WithContext(ctx).
		Where("course_configuration_id = ?", courseID).
		First(&s).Error; err != nil {
		return nil, notFound(err, "syllabus for course "+courseID)
	}
	return &s, nil
}

func (r *Repo) UpdateSyllabus(ctx context.Context, courseID string, modules []Module, keywords []string, status SyllabusStatus) error {
	res := r.db.WithContext(ctx).Model(&Syllabus{}).
		Where("course_configuration_id = ?", courseID).
		Updates(map[string]any{
			"modules":  datatypes.NewJSONType(modules),
			"keywords": datatypes.NewJSONType(keywords),
			"status":   status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("syllabus for course %s: %w", courseID, ErrNotFound)
	}
	return nil
}

func (r *Repo) UpdateSyllabusStatus(ctx context.Context, courseID string, status SyllabusStatus) error {
	return r.db.WithContext(ctx).Model(&Syllabus{}).
		Where("course_configuration_id = ?", courseID).
		Update("status", status).Error
}

// Content items

func (r *Repo) GetExistingContentForTopic(ctx context.Context, courseID string, moduleIndex, topicIndex int) ([]ContentItem, error) {
	var items []ContentItem
	if err := r.db.WithContext(ctx).
		Where("course_configuration_id = ? AND module_index = ? AND topic_index = ?", courseID, moduleIndex, topicIndex).
		Order("order_index ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// orderRetries bounds how often an insert is retried after another writer
// took the same order_index for the topic.
const orderRetries = 5

// CreateContentItem inserts the item at the next free order_index for its topic.
func (r *Repo) CreateContentItem(ctx context.Context, item *ContentItem) error {
	return r.withOrderRetry(ctx, func(tx *gorm.DB) error {
		return insertOrdered(tx, item)
	})
}

// CompleteContentJob stores the generated item and marks its job completed in
// one transaction, so a failed status write leaves no orphan item behind.
func (r *Repo) CompleteContentJob(ctx context.Context, jobID string, item *ContentItem, completedAt time.Time) error {
	return r.withOrderRetry(ctx, func(tx *gorm.DB) error {
		if err := insertOrdered(tx, item); err != nil {
			return err
		}
		res := tx.Model(&ContentJob{}).Where("id = ?", jobID).Updates(map[string]any{
			"status":            JobCompleted,
			"error_message":     nil,
			"completed_at":      completedAt,
			"result_content_id": item.ID,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil
	})
}

// withOrderRetry reruns fn in a fresh transaction when the unique
// (course, module, topic, order_index) index rejects the insert.
func (r *Repo) withOrderRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < orderRetries; attempt++ {
		err = r.db.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return fmt.Errorf("content order index still taken after %d attempts: %w", orderRetries, err)
}

func insertOrdered(tx *gorm.DB, item *ContentItem) error {
	var next int
	if err := tx.Model(&ContentItem{}).
		Select("COALESCE(MAX(order_index), -1) + 1").
		Where("course_configuration_id = ? AND module_index = ? AND topic_index = ?",
			item.CourseConfigurationID, item.ModuleIndex, item.TopicIndex).
		Scan(&next).Error; err != nil {
		return err
	}
	item.OrderIndex = next
	return tx.Create(item).Error
}

// Job CRUD

func (r *Repo) CreateSyllabusJob(ctx context.Context, job *SyllabusJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) CreateContentJob(ctx context.Context, job *ContentJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetSyllabusJob(ctx context.Context, id string) (*SyllabusJob, error) {
	var j SyllabusJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "syllabus job "+id)
	}
	return &j, nil
}

func (r *Repo) GetContentJob(ctx context.Context, id string) (*ContentJob, error) {
	var j ContentJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "content job "+id)
	}
	return &j, nil
}

// GetPendingSyllabusJob returns the oldest pending syllabus job of a course.
func (r *Repo) GetPendingSyllabusJob(ctx context.Context, courseID string) (*SyllabusJob, error) {
	var j SyllabusJob
	if err := r.db.WithContext(ctx).
		Where("course_configuration_id = ? AND status = ?", courseID, JobPending).
		Order("created_at ASC").
		First(&j).Error; err != nil {
		return nil, notFound(err, "pending syllabus job for course "+courseID)
	}
	return &j, nil
}

func (r *Repo) GetPendingContentJob(ctx context.Context, key ContentKey) (*ContentJob, error) {
	var j ContentJob
	if err := r.db.WithContext(ctx).
		Where("course_configuration_id = ? AND module_index = ? AND topic_index = ? AND content_type = ? AND status = ?",
			key.CourseID, key.ModuleIndex, key.TopicIndex, key.ContentType, JobPending).
		Order("created_at ASC").
		First(&j).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("pending content job for course %s module %d topic %d", key.CourseID, key.ModuleIndex, key.TopicIndex))
	}
	return &j, nil
}

// ClaimSyllabusJob performs the pending -> processing transition as a single
// conditional update. It returns ErrJobNotClaimable when another invocation won.
func (r *Repo) ClaimSyllabusJob(ctx context.Context, id string, startedAt time.Time) error {
	return r.claim(ctx, &SyllabusJob{}, id, startedAt)
}

func (r *Repo) ClaimContentJob(ctx context.Context, id string, startedAt time.Time) error {
	return r.claim(ctx, &ContentJob{}, id, startedAt)
}

func (r *Repo) claim(ctx context.Context, model any, id string, startedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(model).
		Where("id = ? AND status = ? AND retries < max_retries", id, JobPending).
		Updates(map[string]any{
			"status":        JobProcessing,
			"started_at":    startedAt,
			"retries":       gorm.Expr("retries + 1"),
			"error_message": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotClaimable
	}
	return nil
}

func (r *Repo) UpdateSyllabusJobStatus(ctx context.Context, id string, status JobStatus, upd JobUpdate) error {
	return r.updateJob(ctx, &SyllabusJob{}, id, status, upd)
}

func (r *Repo) UpdateContentJobStatus(ctx context.Context, id string, status JobStatus, upd JobUpdate) error {
	return r.updateJob(ctx, &ContentJob{}, id, status, upd)
}

func (r *Repo) updateJob(ctx context.Context, model any, id string, status JobStatus, upd JobUpdate) error {
	fields := map[string]any{"status": status}
	if upd.ErrorMessage != nil {
		fields["error_message"] = *upd.ErrorMessage
	} else if upd.ClearError {
		fields["error_message"] = nil
	}
	if upd.StartedAt != nil {
		fields["started_at"] = *upd.StartedAt
	}
	if upd.CompletedAt != nil {
		fields["completed_at"] = *upd.CompletedAt
	}
	if upd.Retries != nil {
		fields["retries"] = *upd.Retries
	}
	if upd.ResultContentID != nil {
		fields["result_content_id"] = *upd.ResultContentID
	}

	res := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateCourse writes the configuration, its pending syllabus and the pending
// syllabus job in one transaction.
func (r *Repo) CreateCourse(ctx context.Context, cfg *CourseConfiguration, syl *Syllabus, job *SyllabusJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cfg).Error; err != nil {
			return err
		}
		if err := tx.Create(syl).Error; err != nil {
			return err
		}
		return tx.Create(job).Error
	})
}
