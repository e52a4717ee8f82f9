package config

import (
	"context"
	"strings"

	"clobex.com/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix 环境变量覆盖，例如 CLOBEX_SERVER_ADDR 覆盖 server.addr
const EnvPrefix = "CLOBEX"

// Load 读 config/{service}.yaml（找不到再看当前目录），环境变量优先。
// path 非空时直接读这个文件
func Load(service, path string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "config loaded", zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	return v, nil
}

// LoadAndWatch 文件变更时解到一份新的 T 再回调，调用方自己决定哪些字段能热更新
func LoadAndWatch[T any](service, path string, onChange func(T)) (T, error) {
	var cfg T
	v, err := Load(service, path, &cfg)
	if err != nil {
		return cfg, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		var next T
		if err := v.Unmarshal(&next); err != nil {
			logger.Warn(context.Background(), "reload config failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info(context.Background(), "config reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return cfg, nil
}
