package config

import (
	"PPCollab/tools/errs"
	"PPCollab/tools/safe"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// NacosConfig 远程配置中心；内容为与本地文件相同结构的 YAML
type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      uint64 `yaml:"port"`
	Namespace string `yaml:"namespace"`
	DataID    string `yaml:"dataId"`
	Group     string `yaml:"group"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs uint64 `yaml:"timeoutMs"`
	CacheDir  string `yaml:"cacheDir"`
	LogDir    string `yaml:"logDir"`
	LogLevel  string `yaml:"logLevel"`
}

// NacosSource 拉取并监听一份配置
type NacosSource struct {
	conf NacosConfig
	cli  config_client.IConfigClient
	log  *zap.Logger
}

func NewNacosSource(c NacosConfig, log *zap.Logger) (*NacosSource, error) {
	if c.Host == "" || c.Port == 0 {
		return nil, errs.New("nacos host/port is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cli, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(c),
		ServerConfigs: []constant.ServerConfig{*constant.NewServerConfig(c.Host, c.Port)},
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "host", c.Host)
	}
	return &NacosSource{conf: c, cli: cli, log: log}, nil
}

func clientConfig(c NacosConfig) *constant.ClientConfig {
	timeout := c.TimeoutMs
	if timeout == 0 {
		timeout = 5000
	}
	opts := []constant.ClientOption{
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(timeout),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(orDefault(c.LogLevel, "warn")),
		constant.WithCacheDir(orDefault(c.CacheDir, "nacos/cache")),
		constant.WithLogDir(orDefault(c.LogDir, "nacos/log")),
	}
	if c.Username != "" {
		opts = append(opts, constant.WithUsername(c.Username), constant.WithPassword(c.Password))
	}
	return constant.NewClientConfig(opts...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *NacosSource) param() vo.ConfigParam {
	return vo.ConfigParam{DataId: s.conf.DataID, Group: s.conf.Group}
}

// Fetch 拉取当前内容
func (s *NacosSource) Fetch() (string, error) {
	content, err := s.cli.GetConfig(s.param())
	if err != nil {
		return "", errs.WrapMsg(err, "get nacos config", "dataId", s.conf.DataID, "group", s.conf.Group)
	}
	return content, nil
}

// Watch 内容变化时回调；回调 panic 不影响后续通知
func (s *NacosSource) Watch(onChange func(data string)) error {
	p := s.param()
	p.OnChange = func(namespace, group, dataId, data string) {
		s.log.Info("nacos config changed", zap.String("dataId", dataId), zap.String("group", group))
		_ = safe.Call(s.log, "nacos.onChange", func() error {
			onChange(data)
			return nil
		})
	}
	if err := s.cli.ListenConfig(p); err != nil {
		return errs.WrapMsg(err, "listen nacos config", "dataId", s.conf.DataID)
	}
	return nil
}

func (s *NacosSource) Close() {
	_ = s.cli.CancelListenConfig(s.param())
	s.cli.CloseClient()
}

// Reload 在 base 的副本上叠加远程 YAML，再套环境变量；失败时返回 base 不变
func Reload(base *AppConfig, data string) (*AppConfig, error) {
	next := *base
	if err := next.MergeYAML([]byte(data)); err != nil {
		return base, err
	}
	next.ApplyEnv()
	if err := next.Validate(); err != nil {
		return base, err
	}
	return &next, nil
}
