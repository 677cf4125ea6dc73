package config

import "github.com/spf13/viper"

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress  string `mapstructure:"SERVER_ADDRESS"`
	PostgresConn   string `mapstructure:"POSTGRES_CONN"`
	PostgresUser   string `mapstructure:"POSTGRES_USERNAME"`
	PostgresPass   string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresHost   string `mapstructure:"POSTGRES_HOST"`
	PostgresPort   string `mapstructure:"POSTGRES_PORT"`
	PostgresDB     string `mapstructure:"POSTGRES_DATABASE"`
	MigrationURL   string `mapstructure:"MIGRATION_URL"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RequestTimeout int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5
	}
	return
}
