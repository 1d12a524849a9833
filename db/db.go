package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"library_lending/models"
)

// Connect opens postgres, migrates the schema and returns the handle.
func Connect(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database connected")
	return gdb, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Order{}); err != nil {
		return err
	}

	// 逾期扫描只看 BORROWED，部分索引让 due_date 范围查询走索引
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_borrowed_due_date
	  ON %s (due_date)
	  WHERE status = '%s';
	`, models.OrderTable, models.OrderTable, models.StatusBorrowed)).Error; err != nil {
		return err
	}

	return nil
}
