package xlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ZapLogger *zap.Logger
	Logger    *zap.SugaredLogger

	inited bool
)

func init() {
	// library embedders get a nop logger until InitLog is called
	ZapLogger = zap.NewNop()
	Logger = ZapLogger.Sugar()
}

func InitLog(outputPath []string, level zapcore.Level) {
	if inited {
		panic("InitLog called somewhere")
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = outputPath
	cfg.Level.SetLevel(level)

	var err error
	ZapLogger, err = cfg.Build()
	if err != nil {
		panic(err.Error())
	}
	Logger = ZapLogger.Sugar()
	inited = true
}
