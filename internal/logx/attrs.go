package logx

import "log/slog"

// Err renders an error as a string attribute; nil becomes "no-error".
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "no-error")
	}
	return slog.String("error", err.Error())
}

// Component tags a log line with the subsystem that emitted it.
func Component(name string) slog.Attr { return slog.String("component", name) }

func Entity(name string) slog.Attr { return slog.String("entity", name) }

func Target(name string) slog.Attr { return slog.String("target", name) }

func Rows(n int) slog.Attr { return slog.Int("rows", n) }

func RunID(id string) slog.Attr { return slog.String("run", id) }
