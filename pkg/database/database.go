package database

import (
	"fmt"
	"os"
	"path/filepath"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/logger"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case util.DriverMySQL, "":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case util.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return postgres.Open(dsn), nil
	case util.DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Warn
	if mode == "debug" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate 建表并写入默认题目
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Question{},
		&model.ProgressRecord{},
	); err != nil {
		return err
	}

	logger.Log.Info("Database migration completed")

	var count int64
	if err := db.Model(&model.Question{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaultQuestions := []model.Question{
		{
			ID:          "reverse-array",
			Title:       "反转数组",
			Description: "编写伪代码，原地反转一个整数数组。",
			Requirements: []string{
				"使用两个下标从两端向中间移动",
				"不使用额外的数组",
				"处理空数组和单元素数组",
			},
			Difficulty: "easy",
		},
		{
			ID:          "binary-search",
			Title:       "二分查找",
			Description: "在有序数组中查找目标值，返回其下标，不存在时返回 -1。",
			Requirements: []string{
				"每次比较后将查找区间缩小一半",
				"正确处理循环终止条件",
				"目标不存在时返回 -1",
			},
			Difficulty: "easy",
		},
		{
			ID:          "detect-cycle",
			Title:       "链表判环",
			Description: "判断单链表中是否存在环。",
			Requirements: []string{
				"使用快慢指针",
				"常数额外空间",
				"处理空链表",
			},
			Difficulty: "medium",
		},
	}
	for _, q := range defaultQuestions {
		if err := db.Create(&q).Error; err != nil {
			return err
		}
	}
	return nil
}
