// Package repository stores communes in the commune table through gorm.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

var (
	conflictColumns = []string{"code_insee"}
	updateColumns   = []string{"code_postal", "nom", "latitude", "longitude"}
)

// CommuneRepository is the commune store used by the import and export jobs.
type CommuneRepository interface {
	// Upsert inserts communes, or updates every mutable column of the commune with the same
	// INSEE code. When communes repeats an INSEE code, the last one wins.
	Upsert(ctx context.Context, t tx.Tx, communes []*entity.Commune) error
	// UpdateCoordinates stores the coordinates of communes, matched by id.
	UpdateCoordinates(ctx context.Context, t tx.Tx, communes []*entity.Commune) error
	// FindMissingCoordinates returns up to limit communes without coordinates whose id is
	// greater than afterID, ordered by id.
	FindMissingCoordinates(ctx context.Context, afterID uint, limit int) ([]*entity.Commune, error)
	// FindAllSorted returns one page of communes ordered by postal code, INSEE code and id.
	FindAllSorted(ctx context.Context, offset, limit int) ([]*entity.Commune, error)
	CountDistinctPostalCodes(ctx context.Context) (int64, error)
	CountDistinctNames(ctx context.Context) (int64, error)
	CountMissingCoordinates(ctx context.Context) (int64, error)
}

// GormCommuneRepository implements CommuneRepository on a gorm connection.
type GormCommuneRepository struct {
	conn *gormadaptor.GormDBAdapter
}

var _ CommuneRepository = (*GormCommuneRepository)(nil)

// NewGormCommuneRepository creates a GormCommuneRepository over conn.
func NewGormCommuneRepository(conn *gormadaptor.GormDBAdapter) *GormCommuneRepository {
	return &GormCommuneRepository{conn: conn}
}

func (r *GormCommuneRepository) Upsert(ctx context.Context, t tx.Tx, communes []*entity.Commune) error {
	const op = "GormCommuneRepository.Upsert"
	if len(communes) == 0 {
		return nil
	}
	if t == nil {
		return exception.NewBatchError(op, "a transaction is required", nil, false, false)
	}
	communes = lastByCodeInsee(communes)
	if _, err := t.ExecuteUpsert(ctx, &communes, entity.Commune{}.TableName(), conflictColumns, updateColumns); err != nil {
		return r.wrap(op, fmt.Sprintf("failed to upsert %d commune(s)", len(communes)), err)
	}
	return nil
}

// lastByCodeInsee keeps one commune per INSEE code, the last one, at the position of the first.
// PostgreSQL rejects an ON CONFLICT DO UPDATE statement that touches the same row twice.
func lastByCodeInsee(communes []*entity.Commune) []*entity.Commune {
	index := make(map[string]int, len(communes))
	unique := make([]*entity.Commune, 0, len(communes))
	for _, c := range communes {
		if i, ok := index[c.CodeInsee]; ok {
			unique[i] = c
			continue
		}
		index[c.CodeInsee] = len(unique)
		unique = append(unique, c)
	}
	return unique
}

func (r *GormCommuneRepository) UpdateCoordinates(ctx context.Context, t tx.Tx, communes []*entity.Commune) error {
	const op = "GormCommuneRepository.UpdateCoordinates"
	if len(communes) == 0 {
		return nil
	}
	db, err := gormadaptor.TxDB(t)
	if err != nil {
		return exception.NewBatchError(op, "a gorm transaction is required", err, false, false)
	}
	for _, c := range communes {
		result := db.WithContext(ctx).
			Model(&entity.Commune{}).
			Where("id = ?", c.ID).
			Updates(map[string]interface{}{"latitude": c.Latitude, "longitude": c.Longitude})
		if result.Error != nil {
			return r.wrap(op, fmt.Sprintf("failed to update coordinates of commune %s", c.CodeInsee), result.Error)
		}
		if result.RowsAffected == 0 {
			return exception.NewBatchErrorf(op, "commune %s (id %d) not found", c.CodeInsee, c.ID)
		}
	}
	return nil
}

func (r *GormCommuneRepository) FindMissingCoordinates(ctx context.Context, afterID uint, limit int) ([]*entity.Commune, error) {
	const op = "GormCommuneRepository.FindMissingCoordinates"
	var communes []*entity.Commune
	err := r.db(ctx).
		Where("latitude IS NULL OR longitude IS NULL").
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Find(&communes).Error
	if err != nil {
		return nil, r.wrap(op, "failed to read communes without coordinates", err)
	}
	return communes, nil
}

func (r *GormCommuneRepository) FindAllSorted(ctx context.Context, offset, limit int) ([]*entity.Commune, error) {
	const op = "GormCommuneRepository.FindAllSorted"
	var communes []*entity.Commune
	err := r.db(ctx).
		Order("code_postal, code_insee, id").
		Offset(offset).
		Limit(limit).
		Find(&communes).Error
	if err != nil {
		return nil, r.wrap(op, fmt.Sprintf("failed to read communes at offset %d", offset), err)
	}
	return communes, nil
}

func (r *GormCommuneRepository) CountDistinctPostalCodes(ctx context.Context) (int64, error) {
	return r.countDistinct(ctx, "GormCommuneRepository.CountDistinctPostalCodes", "code_postal")
}

func (r *GormCommuneRepository) CountDistinctNames(ctx context.Context) (int64, error) {
	return r.countDistinct(ctx, "GormCommuneRepository.CountDistinctNames", "nom")
}

func (r *GormCommuneRepository) CountMissingCoordinates(ctx context.Context) (int64, error) {
	const op = "GormCommuneRepository.CountMissingCoordinates"
	var n int64
	if err := r.db(ctx).Where("latitude IS NULL OR longitude IS NULL").Count(&n).Error; err != nil {
		return 0, r.wrap(op, "failed to count communes without coordinates", err)
	}
	return n, nil
}

func (r *GormCommuneRepository) countDistinct(ctx context.Context, op, column string) (int64, error) {
	var n int64
	if err := r.db(ctx).Distinct(column).Count(&n).Error; err != nil {
		return 0, r.wrap(op, fmt.Sprintf("failed to count distinct %s", column), err)
	}
	return n, nil
}

func (r *GormCommuneRepository) db(ctx context.Context) *gorm.DB {
	return r.conn.GormDB().WithContext(ctx).Model(&entity.Commune{})
}

func (r *GormCommuneRepository) wrap(op, message string, err error) error {
	if r.conn != nil && r.conn.IsTableNotExistError(err) {
		message += " (commune is missing: run the application migrations first)"
	}
	return exception.NewBatchError(op, message, err, false, exception.IsTransient(err))
}
