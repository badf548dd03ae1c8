package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/school-admin/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is the single relational table backing every collection.
type documentRow struct {
	Collection string       `gorm:"type:varchar(64);primaryKey"`
	ID         string       `gorm:"type:char(36);primaryKey"`
	Data       models.JSONB `gorm:"type:json;not null"`
	CreatedAt  time.Time    `gorm:"index"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

func (r *documentRow) toDocument() Document {
	return Document{
		ID:         r.ID,
		Collection: r.Collection,
		Data:       r.Data,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// GormStore implements Store on a relational database through gorm.
// Postgres and MySQL are supported; JSON field filters are translated per
// dialect.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the documents table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&documentRow{})
}

func (s *GormStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for i := range rows {
		docs = append(docs, rows[i].toDocument())
	}
	return docs, nil
}

func (s *GormStore) GetByID(ctx context.Context, collection, id string) (*Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc := row.toDocument()
	return &doc, nil
}

func (s *GormStore) Add(ctx context.Context, collection string, data models.JSONB) (string, error) {
	row := documentRow{
		Collection: collection,
		ID:         uuid.New().String(),
		Data:       data,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return row.ID, nil
}

func (s *GormStore) Update(ctx context.Context, collection, id string, patch models.JSONB) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return mergePatch(tx, collection, id, patch)
	})
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	tx := s.db.WithContext(ctx).Model(&documentRow{}).Where("collection = ?", collection)

	for _, f := range q.Filters {
		cond, arg, err := s.filterSQL(f)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(cond, arg)
	}

	if q.NewestFirst {
		tx = tx.Order("created_at DESC, id DESC")
	} else {
		tx = tx.Order("created_at, id")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for i := range rows {
		docs = append(docs, rows[i].toDocument())
	}
	return docs, nil
}

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

var sqlOps = map[string]string{
	"==": "=",
	"!=": "<>",
	">":  ">",
	">=": ">=",
	"<":  "<",
	"<=": "<=",
}

// filterSQL translates a filter into a dialect-specific condition on the
// JSON data column. Field names are interpolated and therefore validated.
func (s *GormStore) filterSQL(f Filter) (string, interface{}, error) {
	if !fieldNamePattern.MatchString(f.Field) {
		return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
	}
	op, ok := sqlOps[f.Op]
	if !ok {
		return "", nil, fmt.Errorf("invalid filter op %q", f.Op)
	}

	_, numeric := toFloat(f.Value)
	mysql := s.db.Dialector.Name() == "mysql"

	var expr string
	switch {
	case mysql && numeric:
		expr = fmt.Sprintf("CAST(JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s')) AS DECIMAL(18,4))", f.Field)
	case mysql:
		expr = fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s'))", f.Field)
	case numeric:
		expr = fmt.Sprintf("(data ->> '%s')::numeric", f.Field)
	default:
		expr = fmt.Sprintf("data ->> '%s'", f.Field)
	}

	value := f.Value
	if b, isBool := f.Value.(bool); isBool && !mysql {
		// ->> yields the JSON literal as text
		value = fmt.Sprintf("%t", b)
	}
	return fmt.Sprintf("%s %s ?", expr, op), value, nil
}

func (s *GormStore) NewBatch() Batch {
	return &gormBatch{db: s.db}
}

type batchOp struct {
	kind       string // "set", "update", "delete", "check"
	collection string
	id         string
	data       models.JSONB
	field      string
	want       interface{}
}

type gormBatch struct {
	db  *gorm.DB
	ops []batchOp
}

func (b *gormBatch) Set(collection, id string, data models.JSONB) {
	b.ops = append(b.ops, batchOp{kind: "set", collection: collection, id: id, data: data})
}

func (b *gormBatch) Update(collection, id string, patch models.JSONB) {
	b.ops = append(b.ops, batchOp{kind: "update", collection: collection, id: id, data: patch})
}

func (b *gormBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: "delete", collection: collection, id: id})
}

func (b *gormBatch) Check(collection, id, field string, want interface{}) {
	b.ops = append(b.ops, batchOp{kind: "check", collection: collection, id: id, field: field, want: want})
}

func (b *gormBatch) Commit(ctx context.Context) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Preconditions first: a failed check rolls back before any write.
		for _, op := range b.ops {
			if op.kind != "check" {
				continue
			}
			var row documentRow
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("collection = ? AND id = ?", op.collection, op.id).
				First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s missing", ErrCheckFailed, op.collection, op.id)
			}
			if err != nil {
				return err
			}
			if !looseEqual(row.Data[op.field], op.want) {
				return fmt.Errorf("%w: %s/%s field %s", ErrCheckFailed, op.collection, op.id, op.field)
			}
		}

		for _, op := range b.ops {
			switch op.kind {
			case "set":
				row := documentRow{Collection: op.collection, ID: op.id, Data: op.data}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
					UpdateAll: true,
				}).Create(&row).Error; err != nil {
					return err
				}
			case "update":
				if err := mergePatch(tx, op.collection, op.id, op.data); err != nil {
					return err
				}
			case "delete":
				if err := tx.Where("collection = ? AND id = ?", op.collection, op.id).
					Delete(&documentRow{}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func mergePatch(tx *gorm.DB, collection, id string, patch models.JSONB) error {
	var row documentRow
	err := tx.Where("collection = ? AND id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if row.Data == nil {
		row.Data = make(models.JSONB)
	}
	for k, v := range patch {
		row.Data[k] = v
	}
	return tx.Model(&documentRow{}).
		Where("collection = ? AND id = ?", collection, id).
		Updates(map[string]interface{}{"data": row.Data, "updated_at": time.Now()}).Error
}
