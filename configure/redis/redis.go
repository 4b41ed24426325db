package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
	"github.com/gocrud/ioc/logging"
)

// Options Redis 客户端配置
type Options struct {
	Name         string        // 客户端名称
	Addr         string        // Redis 服务器地址 (host:port)
	Password     string        // 密码（可选）
	DB           int           // 数据库编号
	DialTimeout  time.Duration // 连接超时时间
	ReadTimeout  time.Duration // 读取超时时间
	WriteTimeout time.Duration // 写入超时时间
	PoolSize     int           // 连接池大小
	MinIdleConns int           // 最小空闲连接数
	MaxRetries   int           // 最大重试次数
	Logger       logging.Logger
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *Options {
	return &Options{
		Name:         name,
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		Logger:       logging.NewNop(),
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis: client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis: address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis: database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis: dial timeout must be positive")
	}
	return nil
}

// Client 托管的 Redis 客户端，容器关闭时自动断开
type Client struct {
	Redis  *redis.Client
	name   string
	logger logging.Logger
}

// Destroy 关闭客户端
func (c *Client) Destroy() error {
	c.logger.Info("closing redis client", logging.F("name", c.name))
	return c.Redis.Close()
}

// DefinitionName Redis 客户端在容器内的注册名
func DefinitionName(name string) string {
	return "redis." + name
}

// Install 以外部工厂回调的方式注册 Redis 客户端定义。
// 连接延迟到首次解析时建立并做一次 Ping 探活；
// 名为 "default" 的额外登记别名 "redis"。
func Install(f *factory.Factory, opts *Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	def := definition.NewFor[Client]()
	def.Role = definition.RoleInfrastructure
	def.Factory = func() (any, error) {
		return connect(opts)
	}

	reg := f.Registry()
	if err := reg.Register(DefinitionName(opts.Name), def); err != nil {
		return err
	}
	if opts.Name == "default" {
		if err := reg.RegisterAlias("redis", DefinitionName(opts.Name)); err != nil {
			return err
		}
	}
	return nil
}

func connect(opts *Options) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connect %q: %w", opts.Name, err)
	}

	opts.Logger.Info("redis client connected", logging.F("name", opts.Name))
	return &Client{Redis: client, name: opts.Name, logger: opts.Logger}, nil
}
