package alert

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes alerts as structured JSON records.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps an existing zap logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("alert")}
}

// NewZapFileSink appends JSON alert records to path.
func NewZapFileSink(path string) (*ZapSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zap.WarnLevel)
	return NewZapSink(zap.New(core)), nil
}

func (s *ZapSink) Alert(a Alert) {
	fields := []zap.Field{
		zap.String("code", string(a.Code)),
		zap.String("symbol", a.Symbol),
		zap.String("venue", a.Venue),
		zap.Uint32("order_id", a.OrderID),
		zap.String("reason", a.Reason),
		zap.Int("count", a.Count),
		zap.Int64("event_time", int64(a.Time)),
	}
	if a.RunID != "" {
		fields = append(fields, zap.String("run_id", a.RunID))
	}
	if a.Severity == SeverityCritical {
		s.logger.Error(a.Message, fields...)
		return
	}
	s.logger.Warn(a.Message, fields...)
}

// Sync flushes buffered records.
func (s *ZapSink) Sync() error {
	return s.logger.Sync()
}
