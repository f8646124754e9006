// Package sql persists job runs in the batch_job_run table through gorm.
package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
	model "github.com/tigerroll/communes/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/communes/pkg/batch/core/domain/repository"
	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

// GormJobRunRepository implements repository.JobRunRepository on a gorm connection.
type GormJobRunRepository struct {
	conn *gormadaptor.GormDBAdapter
}

// NewGormJobRunRepository creates a GormJobRunRepository over conn.
func NewGormJobRunRepository(conn *gormadaptor.GormDBAdapter) *GormJobRunRepository {
	return &GormJobRunRepository{conn: conn}
}

var _ repository.JobRunRepository = (*GormJobRunRepository)(nil)

func (r *GormJobRunRepository) LastRunID(ctx context.Context, jobName string) (int64, error) {
	const op = "GormJobRunRepository.LastRunID"
	var last int64
	err := r.conn.GormDB().WithContext(ctx).
		Model(&JobRunEntity{}).
		Select("COALESCE(MAX(run_id), 0)").
		Where("job_name = ?", jobName).
		Scan(&last).Error
	if err != nil {
		return 0, r.wrap(op, fmt.Sprintf("failed to read last run id of '%s'", jobName), err)
	}
	return last, nil
}

func (r *GormJobRunRepository) SaveJobRun(ctx context.Context, run model.JobRun) error {
	const op = "GormJobRunRepository.SaveJobRun"
	entity := fromDomainJobRun(run)
	if _, err := r.conn.ExecuteUpsert(ctx, entity, entity.TableName(), jobRunConflictColumns, jobRunUpdateColumns); err != nil {
		return r.wrap(op, fmt.Sprintf("failed to save run %d of '%s'", run.RunID, run.JobName), err)
	}
	return nil
}

func (r *GormJobRunRepository) FindJobRun(ctx context.Context, jobName string, runID int64) (model.JobRun, error) {
	const op = "GormJobRunRepository.FindJobRun"
	var entity JobRunEntity
	err := r.conn.GormDB().WithContext(ctx).
		Where("job_name = ? AND run_id = ?", jobName, runID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.JobRun{}, repository.ErrJobRunNotFound
	}
	if err != nil {
		return model.JobRun{}, r.wrap(op, fmt.Sprintf("failed to find run %d of '%s'", runID, jobName), err)
	}
	return toDomainJobRun(&entity), nil
}

func (r *GormJobRunRepository) wrap(op, message string, err error) error {
	if r.conn.IsTableNotExistError(err) {
		message += " (batch_job_run is missing: run the framework migrations first)"
	}
	return exception.NewBatchError(op, message, err, false, exception.IsTransient(err))
}
