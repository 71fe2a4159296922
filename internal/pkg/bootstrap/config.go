package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有进程共享的配置结构，对应 configs/*.yaml
type Config struct {
	App         AppConfig         `yaml:"app"`
	Infra       InfraConfig       `yaml:"infra"`
	Reservation ReservationConfig `yaml:"reservation"`
	Order       OrderConfig       `yaml:"order"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	// Store 选择持久化后端: mysql | memory
	Store string `yaml:"store"`
	// RunReconciler 为 true 时在服务进程内运行过期清理
	RunReconciler   bool          `yaml:"runReconciler"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Mysql     MysqlConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type MysqlConfig struct {
	DSN             string        `yaml:"dsn"`
	Addr            string        `yaml:"addr"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	GroupID string      `yaml:"groupId"`
	Topics  KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	ReservationEvents string `yaml:"reservationEvents"`
	PaymentEvents     string `yaml:"paymentEvents"`
	PaymentEventsDLT  string `yaml:"paymentEventsDlt"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	Register    bool   `yaml:"register"`
	// ConfigDataID 非空时，从配置中心拉取配置覆盖本地文件并监听变更
	ConfigDataID string `yaml:"configDataId"`
}

type ReservationConfig struct {
	HoldDuration time.Duration    `yaml:"holdDuration"`
	Retry        RetryConfig      `yaml:"retry"`
	Reconciler   ReconcilerConfig `yaml:"reconciler"`
	// CancelRule 是订单自动取消资格的 CEL 表达式，为空时使用内置规则
	CancelRule string `yaml:"cancelRule"`
	// IdempotencyTTL 是下单幂等键的保留时长
	IdempotencyTTL time.Duration `yaml:"idempotencyTtl"`
	// Seed 仅在 memory 存储下使用，启动时写入的初始账本
	Seed []SeedConfig `yaml:"seed"`
}

type SeedConfig struct {
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`
	// Capacity 缺省表示不限量（仅券可用）
	Capacity *int64 `yaml:"capacity"`
}

type OrderConfig struct {
	// ReservationEndpoint 非空时通过 HTTP 调用远端预占服务，否则在进程内调用
	ReservationEndpoint string `yaml:"reservationEndpoint"`
	// ProcessingTimeout 是一次下单流程的超时时间
	ProcessingTimeout time.Duration `yaml:"processingTimeout"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

type ReconcilerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	BatchSize      int           `yaml:"batchSize"`
	Concurrency    int           `yaml:"concurrency"`
	PurgeInterval  time.Duration `yaml:"purgeInterval"`
	Retention      time.Duration `yaml:"retention"`
	PurgeBatchSize int           `yaml:"purgeBatchSize"`
	Lock           LockConfig    `yaml:"lock"`
}

type LockConfig struct {
	// Backend: redis | zookeeper | none
	Backend string        `yaml:"backend"`
	Key     string        `yaml:"key"`
	Lease   time.Duration `yaml:"lease"`
}

// DefaultConfig 返回本地开发可直接运行的默认配置
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:            "reservation-service",
			Port:            8090,
			LogLevel:        "info",
			Store:           "mysql",
			RunReconciler:   true,
			ShutdownTimeout: 10 * time.Second,
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Mysql: MysqlConfig{
				Addr:            "localhost:3306",
				User:            "root",
				Database:        "backoffice",
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "reservation-service",
				Topics: KafkaTopics{
					ReservationEvents: "reservation-events",
					PaymentEvents:     "payment-events",
					PaymentEventsDLT:  "payment-events.DLT",
				},
			},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		Reservation: ReservationConfig{
			HoldDuration: 15 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   20 * time.Millisecond,
				MaxDelay:    200 * time.Millisecond,
			},
			Reconciler: ReconcilerConfig{
				Interval:       30 * time.Second,
				BatchSize:      200,
				Concurrency:    8,
				PurgeInterval:  time.Hour,
				Retention:      30 * 24 * time.Hour,
				PurgeBatchSize: 1000,
				Lock:           LockConfig{Backend: "redis", Key: "reservation:sweep", Lease: 25 * time.Second},
			},
			IdempotencyTTL: 24 * time.Hour,
		},
		Order: OrderConfig{ProcessingTimeout: 5 * time.Second},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置快照；未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	return &d
}

// SetCurrentConfig 原子替换当前配置（热更新入口）
func SetCurrentConfig(c *Config) {
	current.Store(c)
}

// LoadFile 以默认配置为底，叠加 YAML 文件与环境变量
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := Parse(raw, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 将 YAML 内容叠加到 cfg 上
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrap(err, "parse config yaml")
	}
	return nil
}

// Validate 检查关键参数
func (c *Config) Validate() error {
	r := c.Reservation
	switch {
	case r.HoldDuration <= 0:
		return errors.New("reservation.holdDuration must be positive")
	case r.Retry.MaxAttempts < 1:
		return errors.New("reservation.retry.maxAttempts must be at least 1")
	case r.Reconciler.Interval <= 0:
		return errors.New("reservation.reconciler.interval must be positive")
	case r.Reconciler.BatchSize < 1:
		return errors.New("reservation.reconciler.batchSize must be at least 1")
	}
	switch c.App.Store {
	case "mysql", "memory":
	default:
		return errors.Errorf("unknown app.store %q", c.App.Store)
	}
	switch r.Reconciler.Lock.Backend {
	case "redis", "zookeeper", "none", "":
	default:
		return errors.Errorf("unknown reconciler lock backend %q", r.Reconciler.Lock.Backend)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("MYSQL_DSN", ""); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v := getEnv("REDIS_ADDRS", ""); v != "" {
		cfg.Infra.Redis.Addrs = splitList(v)
	}
	if v := getEnv("ZOOKEEPER_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
	if v := getEnv("JAEGER_ENDPOINT", ""); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := getEnv("NACOS_SERVER_ADDRS", ""); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := getEnv("NACOS_NAMESPACE", ""); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := getEnv("NACOS_GROUP", ""); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := getEnv("APP_PORT", ""); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := getEnv("APP_STORE", ""); v != "" {
		cfg.App.Store = v
	}
	if v := getEnv("RESERVATION_ENDPOINT", ""); v != "" {
		cfg.Order.ReservationEndpoint = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
