package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/nextmonthlab/smartsite/internal/config"
)

const (
	configFileName = "smartsitectl"
	configFileType = "yaml"
	envPrefix      = "SMARTSITE"

	cfgKeySOTDir     = "sot_dir"
	cfgKeyLogLevel   = "log_level"
	cfgKeyDBHost     = "database.host"
	cfgKeyDBPort     = "database.port"
	cfgKeyDBName     = "database.name"
	cfgKeyDBUser     = "database.user"
	cfgKeyDBPassword = "database.password"
	cfgKeyDBSSLMode  = "database.ssl_mode"
	cfgKeyDBMaxConns = "database.max_conns"
)

// loadConfig читает конфигурацию CLI. Приоритет: флаг > переменная
// SMARTSITE_* > файл > значение по умолчанию. Без --config отсутствие
// smartsitectl.yaml не ошибка.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeySOTDir, "./data")
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault(cfgKeyDBPort, 5432)
	v.SetDefault(cfgKeyDBSSLMode, "disable")
	v.SetDefault(cfgKeyDBMaxConns, 2)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.smartsite")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("чтение конфигурации: %w", err)
	}
	return v, nil
}

// databaseConfig собирает параметры PostgreSQL для database.Connect/Migrate.
func databaseConfig(v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{
		DBHost:     v.GetString(cfgKeyDBHost),
		DBPort:     v.GetInt(cfgKeyDBPort),
		DBName:     v.GetString(cfgKeyDBName),
		DBUser:     v.GetString(cfgKeyDBUser),
		DBPassword: v.GetString(cfgKeyDBPassword),
		DBSSLMode:  v.GetString(cfgKeyDBSSLMode),
		DBMaxConns: v.GetInt(cfgKeyDBMaxConns),
	}

	var missing []string
	for key, val := range map[string]string{
		cfgKeyDBHost:     cfg.DBHost,
		cfgKeyDBName:     cfg.DBName,
		cfgKeyDBUser:     cfg.DBUser,
		cfgKeyDBPassword: cfg.DBPassword,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("не заданы параметры БД: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
