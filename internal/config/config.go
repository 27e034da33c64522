// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Interview     InterviewConfig     `mapstructure:"interview"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储题库对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置默认生成参数（可选，按调用类型覆盖）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// InterviewConfig 配置 AI 面谈相关的生成参数。
// 聊天回合的输出上限较小，骨子生成需要更大的输出窗口。
type InterviewConfig struct {
	ChatMaxTokens       int     `mapstructure:"chat_max_tokens"`
	GenerateMaxTokens   int     `mapstructure:"generate_max_tokens"`
	GenerateTemperature float64 `mapstructure:"generate_temperature"`
}

// ScoringConfig 配置 AI 采点相关的生成参数。
type ScoringConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

// Load 从指定的路径读取 YAML 文件并解析为 Config。
// 所有组件通过依赖注入接收配置，不读取全局状态。
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}

	applyDefaults(&conf)
	return &conf, nil
}

func applyDefaults(c *Config) {
	if c.Interview.ChatMaxTokens == 0 {
		c.Interview.ChatMaxTokens = 1000
	}
	if c.Interview.GenerateMaxTokens == 0 {
		c.Interview.GenerateMaxTokens = 4000
	}
	if c.Interview.GenerateTemperature == 0 {
		c.Interview.GenerateTemperature = 0.5
	}
	if c.Scoring.MaxTokens == 0 {
		c.Scoring.MaxTokens = 4096
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "scribo_scores"
	}
}
