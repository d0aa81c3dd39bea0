package lib

import (
	"io"
	"os"

	"github.com/edubounty/edubounty/internal/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

type LoggerOptions struct {
	Level    string
	Color    bool
	IsProd   bool
	JSON     bool
	FilePath string // appends to the file in addition to stdout when set
}

func NewLogger(opts LoggerOptions) (*Logger, error) {
	log, err := newLogger(opts, nil)
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: log.Sugar()}, nil
}

// NewLoggerMemory additionally writes every entry to wr, used to capture logs in tests
func NewLoggerMemory(opts LoggerOptions, wr io.Writer) (*Logger, error) {
	log, err := newLogger(opts, wr)
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: log.Sugar()}, nil
}

// NewTestLogger logs only to stdout
func NewTestLogger() *Logger {
	log, _ := newLogger(LoggerOptions{Level: "debug"}, nil)
	return &Logger{SugaredLogger: log.Sugar()}
}

func newLogger(opts LoggerOptions, extraWriter io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cores := []zapcore.Core{newConsoleCore(level, opts)}

	if opts.FilePath != "" {
		fileCore, err := newFileCore(zapcore.DebugLevel, opts)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fileCore)
	}
	if extraWriter != nil {
		memoryCore := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(extraWriter), level)
		cores = append(cores, memoryCore)
	}

	zapOpts := []zap.Option{
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if !opts.IsProd {
		zapOpts = append(zapOpts, zap.Development())
	}

	return zap.New(zapcore.NewTee(cores...), zapOpts...), nil
}

func newConsoleCore(level zapcore.Level, opts LoggerOptions) zapcore.Core {
	return zapcore.NewCore(newEncoder(opts, opts.Color), zapcore.AddSync(os.Stdout), level)
}

func newFileCore(level zapcore.Level, opts LoggerOptions) (zapcore.Core, error) {
	file, err := os.OpenFile(opts.FilePath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(newEncoder(opts, false), zapcore.AddSync(file), level), nil
}

func newEncoder(opts LoggerOptions, color bool) zapcore.Encoder {
	var encoderCfg zapcore.EncoderConfig
	if opts.IsProd {
		encoderCfg = zap.NewProductionEncoderConfig()
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}

	if opts.JSON {
		return zapcore.NewJSONEncoder(encoderCfg)
	}
	if color {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}

type Logger struct {
	*zap.SugaredLogger
}

func (l *Logger) Named(name string) interfaces.ILogger {
	return &Logger{l.SugaredLogger.Named(name)}
}

func (l *Logger) With(args ...interface{}) interfaces.ILogger {
	return &Logger{l.SugaredLogger.With(args...)}
}
