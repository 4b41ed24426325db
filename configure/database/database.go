package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
	"github.com/gocrud/ioc/logging"
)

// Options 数据库连接配置
type Options struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型
	Logger       logging.Logger
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *Options {
	return &Options{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		Logger:       logging.NewNop(),
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database: name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database: dialector is required")
	}
	return nil
}

// Database 托管的数据库连接，容器关闭时自动断开
type Database struct {
	DB     *gorm.DB
	name   string
	logger logging.Logger
}

// Destroy 关闭底层连接池
func (d *Database) Destroy() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("database: get sql.DB for %q: %w", d.name, err)
	}
	d.logger.Info("closing database", logging.F("name", d.name))
	return sqlDB.Close()
}

// DefinitionName 数据库连接在容器内的注册名
func DefinitionName(name string) string {
	return "database." + name
}

// Install 以外部工厂回调的方式注册数据库连接定义。
// 连接延迟到首次解析时建立；名为 "default" 的额外登记
// 别名 "database"。
func Install(f *factory.Factory, opts *Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	def := definition.NewFor[Database]()
	def.Role = definition.RoleInfrastructure
	def.Factory = func() (any, error) {
		return open(opts)
	}

	reg := f.Registry()
	if err := reg.Register(DefinitionName(opts.Name), def); err != nil {
		return err
	}
	if opts.Name == "default" {
		if err := reg.RegisterAlias("database", DefinitionName(opts.Name)); err != nil {
			return err
		}
	}
	return nil
}

func open(opts *Options) (*Database, error) {
	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return nil, fmt.Errorf("database: open %q: %w", opts.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: get sql.DB for %q: %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			return nil, fmt.Errorf("database: auto migrate %q: %w", opts.Name, err)
		}
	}

	opts.Logger.Info("database opened", logging.F("name", opts.Name))
	return &Database{DB: db, name: opts.Name, logger: opts.Logger}, nil
}
