package archivedb

import (
	"context"

	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/gorm"
)

var _ archive.Storer = DB{}

// DB Related business namespaces
type DB struct {
	db *gorm.DB
}

// NewDB instance object
func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate sync database
func (d DB) AutoMigrate(ok bool) DB {
	if !ok {
		return d
	}
	if err := d.db.AutoMigrate(new(archive.Result)); err != nil {
		panic(err)
	}
	return d
}

func (d DB) Add(ctx context.Context, r *archive.Result) error {
	return d.db.WithContext(ctx).Create(r).Error
}

func (d DB) Find(ctx context.Context, limit, offset int) ([]*archive.Result, int64, error) {
	db := d.db.WithContext(ctx)
	var total int64
	if err := db.Model(new(archive.Result)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*archive.Result, 0, limit)
	if total == 0 {
		return out, 0, nil
	}
	err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

func (d DB) Get(ctx context.Context, id int64) (*archive.Result, error) {
	var out archive.Result
	if err := d.db.WithContext(ctx).Where("id=?", id).First(&out).Error; err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}
