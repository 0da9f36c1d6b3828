package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/azhengyongqin/genhub/internal/repository"
)

// AutoMigrate 用 GORM 模型定义建表/补索引。
// 运行时读写全部走 pgx；gorm 只在启动时打开一条短命连接完成 schema 对齐。
func AutoMigrate(dsn string) error {
	if err := validatePostgresURI(dsn); err != nil {
		return fmt.Errorf("invalid POSTGRES_DSN: %w", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&repository.TaskModel{},
		&repository.TaskEventModel{},
		&repository.CreditAccountModel{},
		&repository.CreditFreezeModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
