package hook

import (
	"log/slog"
)

// LogObserver writes every event to a slog logger.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnEvent(ev Event) error {
	attrs := []any{"event", ev.Kind.String(), "sessionId", ev.SessionID}
	if ev.StreamPath != "" {
		attrs = append(attrs, "streamPath", ev.StreamPath)
	}
	if len(ev.Args) > 0 {
		attrs = append(attrs, "args", ev.Args)
	}

	if ev.Err != nil {
		o.logger.Warn("Node event", append(attrs, "err", ev.Err)...)
		return nil
	}
	o.logger.Info("Node event", attrs...)
	return nil
}
