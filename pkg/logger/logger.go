// Package logger provides a process-wide structured logger for the MCP client
// runtime, backed by zap. Call Initialize (or InitializeWithEnv for tests) once
// at process startup; every other function reads the current singleton.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvReader abstracts environment variable lookup so tests can inject a fake.
type EnvReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	singleton.Store(newSugared(unstructuredLogs(osEnv{})))
}

// Initialize (re)configures the singleton logger from the process environment.
func Initialize() {
	InitializeWithEnv(osEnv{})
}

// InitializeWithEnv (re)configures the singleton logger using env as the source
// of the MCPCORE_UNSTRUCTURED_LOGS toggle. Exposed for tests.
func InitializeWithEnv(env EnvReader) {
	singleton.Store(newSugared(unstructuredLogsWithEnv(env)))
}

func newSugared(unstructured bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if unstructured {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op encoder rather than panicking during package init.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// unstructuredLogs reports whether human-readable (vs. JSON) logs were requested,
// defaulting to true (human-readable) when the variable is unset or unparsable.
func unstructuredLogs(env EnvReader) bool {
	return unstructuredLogsWithEnv(env)
}

func unstructuredLogsWithEnv(env EnvReader) bool {
	v := env.Getenv("MCPCORE_UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Get returns the current singleton logger.
func Get() *zap.SugaredLogger { return singleton.Load() }

func Debug(args ...interface{})                    { Get().Debug(args...) }
func Debugf(template string, args ...interface{})  { Get().Debugf(template, args...) }
func Debugw(msg string, kv ...interface{})         { Get().Debugw(msg, kv...) }
func Info(args ...interface{})                     { Get().Info(args...) }
func Infof(template string, args ...interface{})   { Get().Infof(template, args...) }
func Infow(msg string, kv ...interface{})          { Get().Infow(msg, kv...) }
func Warn(args ...interface{})                     { Get().Warn(args...) }
func Warnf(template string, args ...interface{})   { Get().Warnf(template, args...) }
func Warnw(msg string, kv ...interface{})          { Get().Warnw(msg, kv...) }
func Error(args ...interface{})                    { Get().Error(args...) }
func Errorf(template string, args ...interface{})  { Get().Errorf(template, args...) }
func Errorw(msg string, kv ...interface{})         { Get().Errorw(msg, kv...) }
func DPanic(args ...interface{})                   { Get().DPanic(args...) }
func DPanicf(template string, args ...interface{}) { Get().DPanicf(template, args...) }
func DPanicw(msg string, kv ...interface{})        { Get().DPanicw(msg, kv...) }
