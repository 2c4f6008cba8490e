package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// OpenGorm opens a sqlite or mysql database.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn is required", driver)
	}
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

type accountRecord struct {
	AccountKey string `gorm:"column:account_key;primaryKey;size:44"`
	Data       []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (accountRecord) TableName() string {
	return "clmm_accounts"
}

// Gorm stores accounts as blobs in one table.
type Gorm struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGorm(db *gorm.DB, logger *zap.Logger) (*Gorm, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&accountRecord{}); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Gorm{db: db, logger: logger}, nil
}

func (s *Gorm) Get(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	var rec accountRecord
	err := s.db.WithContext(ctx).Where("account_key = ?", key.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

func (s *Gorm) Commit(ctx context.Context, writes []pkg.AccountWrite) error {
	if len(writes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if w.Reclaim {
				if err := tx.Where("account_key = ?", w.Key.String()).Delete(&accountRecord{}).Error; err != nil {
					return fmt.Errorf("reclaim %s: %w", w.Key, err)
				}
				continue
			}
			rec := accountRecord{AccountKey: w.Key.String(), Data: w.Data, UpdatedAt: time.Now()}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
			}).Create(&rec).Error
			if err != nil {
				return fmt.Errorf("persist %s: %w", w.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("accounts committed", zap.Int("writes", len(writes)))
	return nil
}
