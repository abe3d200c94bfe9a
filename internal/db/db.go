package db

import (
	"strings"
	"time"

	"loveroom/internal/kv"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dialector 根据 DSN 选择驱动：sqlite:// 前缀或 .db 结尾走 SQLite，其余视为 Postgres。
func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

// IsSQLite 报告 dsn 是否会使用 SQLite 驱动。
func IsSQLite(dsn string) bool {
	return dialector(dsn).Name() == "sqlite"
}

// Connect 负责建立数据库连接，并带有简单的重试来等待容器就绪。
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	attempts := 10
	if IsSQLite(dsn) {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		gdb, err = gorm.Open(dialector(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				if IsSQLite(dsn) {
					// SQLite 只允许单写者。
					sqlDB.SetMaxOpenConns(1)
				} else {
					sqlDB.SetMaxIdleConns(5)
					sqlDB.SetMaxOpenConns(20)
				}
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(500+i*200) * time.Millisecond)
		}
	}
	return nil, err
}

// Migrate 自动迁移键值分区所需的表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&kv.Entry{})
}
