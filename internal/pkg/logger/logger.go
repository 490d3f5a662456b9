package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

type Options struct {
	Level     string
	Format    string
	Verbose   bool
	File      string
	MaxSizeMB int
	MaxFiles  int
	Output    io.Writer
}

func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	if opts.Verbose && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(out)}
	if opts.File != "" {
		writer, err := newRotatingWriter(opts.File, opts.MaxSizeMB, opts.MaxFiles)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(newEncoder(opts.Format), zapcore.NewMultiWriteSyncer(sinks...), level)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, nil
}

func newEncoder(format string) zapcore.Encoder {
	if strings.EqualFold(format, "json") {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeCaller = nil
	cfg.CallerKey = ""
	return zapcore.NewConsoleEncoder(cfg)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) SSHConnectionAttempt(method, target string) {
	l.Infow("connecting", "type", "ssh_connection", "method", method, "target", target)
}

func (l *Logger) DeploymentStep(step, host string) {
	l.Debugw("running step", "type", "deployment", "step", step, "host", host)
}

func (l *Logger) DeploymentError(step string, err error) {
	l.Errorw("step failed", "type", "deployment", "step", step, "error", err.Error())
}

func (l *Logger) DeploymentSuccess(step string) {
	l.Debugw("step succeeded", "type", "deployment", "step", step)
}
