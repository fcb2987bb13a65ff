package orm

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DSN         string // 连接字符串
	MaxIdle     int    // 最大空闲连接
	MaxOpen     int    // 最大打开连接
	MaxLifetime int    // 连接存活秒数
}

// NewMySQL 初始化 GORM。
// 充值台账起不来就没有任何事可做, 直接 panic 让进程在启动期失败。
func NewMySQL(c *Config) *gorm.DB {
	db, err := gorm.Open(mysql.Open(c.DSN), &gorm.Config{
		// 生产环境用 Warn, 避免把全量 SQL 打进日志
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}

	// 连接池配置, 配置缺省时给一组适合单进程后台服务的默认值
	if c.MaxIdle <= 0 {
		c.MaxIdle = 5
	}
	if c.MaxOpen <= 0 {
		c.MaxOpen = 20
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 3600
	}
	sqlDB.SetMaxIdleConns(c.MaxIdle)
	sqlDB.SetMaxOpenConns(c.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)

	return db
}
