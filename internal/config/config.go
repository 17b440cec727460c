package config

import (
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Task       TaskConfig       `mapstructure:"task"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainId            int64  `mapstructure:"chain_id"`             // 链ID
	RpcUrl             string `mapstructure:"rpc_url"`              // HTTP RPC节点URL
	WsUrl              string `mapstructure:"ws_url"`               // WebSocket节点URL（订阅用，可空）
	ContractAddress    string `mapstructure:"contract_address"`     // 托管合约地址
	ArbiterAddress     string `mapstructure:"arbiter_address"`      // 争议裁决人地址
	StartBlock         uint64 `mapstructure:"start_block"`          // 合约部署区块号
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"` // 单次链调用超时
	MaxRetries         int    `mapstructure:"max_retries"`          // 链调用重试次数
}

// ReconcilerConfig 对账引擎配置
type ReconcilerConfig struct {
	ChunkSize           uint64 `mapstructure:"chunk_size"`            // 历史追块每段区块数
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"` // 轮询间隔
	ChunkTimeoutSeconds int    `mapstructure:"chunk_timeout_seconds"` // 单段处理超时
	AlertThreshold      int    `mapstructure:"alert_threshold"`       // 连续失败多少次升级告警
}

type TaskConfig struct {
	ReceiptIntervalSeconds int `mapstructure:"receipt_interval_seconds"` // 回执核对间隔
	ReceiptBatchSize       int `mapstructure:"receipt_batch_size"`       // 每轮核对笔数
	AlertIntervalSeconds   int `mapstructure:"alert_interval_seconds"`   // 检查点滞后巡检间隔
	StaleThresholdSeconds  int `mapstructure:"stale_threshold_seconds"`  // 检查点滞后告警阈值
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ems")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "escrow_marketplace")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.start_block", 0)
	viper.SetDefault("chain.call_timeout_seconds", 15)
	viper.SetDefault("chain.max_retries", 3)
	viper.SetDefault("reconciler.chunk_size", 500)
	viper.SetDefault("reconciler.poll_interval_seconds", 30)
	viper.SetDefault("reconciler.chunk_timeout_seconds", 60)
	viper.SetDefault("reconciler.alert_threshold", 5)
	viper.SetDefault("task.receipt_interval_seconds", 60)
	viper.SetDefault("task.receipt_batch_size", 50)
	viper.SetDefault("task.alert_interval_seconds", 300)
	viper.SetDefault("task.stale_threshold_seconds", 900)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
