package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		OwnerID          int64    `env:"OWNER_ID,required"`
		DefaultLanguage  string   `env:"LANG,default=uz"`
		EnabledHandlers  []string `env:"HANDLERS,default=admin,commands,guard"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.expressbot"`
		ListenAddr       string   `env:"LISTEN_ADDR,default=:3000"`
		Broadcast        Broadcast
		Retry            Retry
	}

	Broadcast struct {
		SendDelay time.Duration `env:"BROADCAST_SEND_DELAY,default=100ms"`
		MaxErrors int           `env:"BROADCAST_MAX_ERRORS,default=5"`
	}

	Retry struct {
		MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS,default=3"`
		BaseDelay   time.Duration `env:"RETRY_BASE_DELAY,default=1s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("XB_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		for i, handler := range cfg.EnabledHandlers {
			cfg.EnabledHandlers[i] = strings.TrimSpace(handler)
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
