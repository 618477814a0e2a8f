package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PPCollab/global/config"
	"PPCollab/logger"
	"PPCollab/tools/ids"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	confPath := pflag.StringP("config", "c", "", "path to YAML config file")
	pflag.Parse()

	cfg, nacos, err := loadConfig(*confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Log)
	defer logger.Sync()

	if cfg.Node.InstanceID == "" {
		cfg.Node.InstanceID = uuid.NewString()
	}
	ids.SetNodeID(cfg.Node.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("init gateway failed", zap.Error(err))
	}
	defer a.close()

	if nacos != nil {
		defer nacos.Close()
		if err := nacos.Watch(a.onRemoteConfig); err != nil {
			log.Warn("nacos watch failed, remote changes ignored", zap.Error(err))
		}
	}

	log.Info("gateway starting",
		zap.String("instance", cfg.Node.InstanceID),
		zap.Int("http", cfg.Node.HTTPPort),
		zap.Int("grpc", cfg.Node.GRPCPort),
		zap.String("backbone", cfg.Backbone.Driver),
		zap.String("directory", cfg.Directory.Driver),
	)
	if err := a.run(ctx); err != nil {
		log.Error("gateway stopped with error", zap.Error(err))
		return
	}
	log.Info("gateway stopped")
}

// loadConfig 默认值 -> 文件 -> Nacos -> 环境变量
func loadConfig(path string) (*config.AppConfig, *config.NacosSource, error) {
	cfg := config.Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, nil, err
		}
	}
	// 先套一次环境变量，允许用 COLLAB_NACOS_ENABLED 打开远程配置
	probe := *cfg
	probe.ApplyEnv()
	if !probe.Nacos.Enabled {
		if err := probe.Validate(); err != nil {
			return nil, nil, err
		}
		return &probe, nil, nil
	}

	src, err := config.NewNacosSource(probe.Nacos, logger.L().Named("nacos"))
	if err != nil {
		return nil, nil, err
	}
	data, err := src.Fetch()
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	merged, err := config.Reload(cfg, data)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return merged, src, nil
}
