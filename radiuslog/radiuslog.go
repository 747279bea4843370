// Package radiuslog provides the structured logging singleton used by
// every other package in this module, plus a per-request "scoped"
// logger that buffers its lines and flushes them as a single record.
package radiuslog

import (
	_ "embed"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//go:embed default_log_config.json
var defaultLogConfigJSON []byte

var (
	initOnce sync.Once
	logger   *zap.SugaredLogger
	level    zapcore.Level
	coreCfg  zap.Config
)

// Init builds the package-level logger from cfg. If cfg is nil, the
// embedded default configuration is used. Safe to call more than
// once; only the first call takes effect.
func Init(cfg []byte) {
	initOnce.Do(func() {
		if cfg == nil {
			cfg = defaultLogConfigJSON
		}
		if err := json.Unmarshal(cfg, &coreCfg); err != nil {
			panic("radiuslog: bad log configuration: " + err.Error())
		}
		built, err := coreCfg.Build()
		if err != nil {
			panic("radiuslog: bad log configuration: " + err.Error())
		}
		level = coreCfg.Level.Level()
		logger = built.Sugar()
	})
}

// Get returns the package-level logger, initializing it with the
// embedded default configuration if Init has not been called yet.
func Get() *zap.SugaredLogger {
	Init(nil)
	return logger
}

func IsDebugEnabled() bool { Init(nil); return level.Enabled(zapcore.DebugLevel) }
func IsInfoEnabled() bool  { Init(nil); return level.Enabled(zapcore.InfoLevel) }
func IsWarnEnabled() bool  { Init(nil); return level.Enabled(zapcore.WarnLevel) }
func IsErrorEnabled() bool { Init(nil); return level.Enabled(zapcore.ErrorLevel) }
