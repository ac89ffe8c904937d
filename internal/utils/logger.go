package utils

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	applicationLog = "application.log"
	errorLog       = "errors.log"
)

// NewLogger logs human readable lines to stderr and, when logDir is set,
// JSON lines to logDir/application.log (info and up) and logDir/errors.log
// (errors only).
func NewLogger(debug bool, logDir string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalColorLevelEncoder)),
		zapcore.Lock(os.Stderr),
		level,
	)
	cores := []zapcore.Core{console}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		appFile, err := openLog(filepath.Join(logDir, applicationLog))
		if err != nil {
			return nil, err
		}
		errFile, err := openLog(filepath.Join(logDir, errorLog))
		if err != nil {
			_ = appFile.Close()
			return nil, err
		}

		jsonEncoder := zapcore.NewJSONEncoder(encoderConfig(zapcore.CapitalLevelEncoder))
		cores = append(cores,
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(appFile), zapcore.InfoLevel),
			zapcore.NewCore(jsonEncoder.Clone(), zapcore.AddSync(errFile), zapcore.ErrorLevel),
		)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
}

func encoderConfig(levelEncoder zapcore.LevelEncoder) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
