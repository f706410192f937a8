package logging

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// DATA OPERATIONS (DATA*)
	DATA_SEED     LogCode = "DATA_SEED"
	DATA_ASSEMBLY LogCode = "DATA_ASSEMBLY"
	DATA_EXPORT   LogCode = "DATA_EXPORT"

	// GENERATION OPERATIONS (GEN*)
	GEN_RUN      LogCode = "GEN_RUN"
	GEN_BRANCH   LogCode = "GEN_BRANCH"
	GEN_DISPATCH LogCode = "GEN_DISPATCH"
	GEN_PARSE    LogCode = "GEN_PARSE"

	// REVIEW OPERATIONS
	REVIEW_PUSH LogCode = "REVIEW_PUSH"
	REVIEW_PULL LogCode = "REVIEW_PULL"
)

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// InitLogging installs the default logger: json logs to the given file with
// the provided default attrs for filtering, plus readable text logs on stderr.
func InitLogging(logFile *os.File, defaultAttrs ...slog.Attr) {
	var jsonHandler slog.Handler = slog.NewJSONHandler(logFile, GetVictoriaLogsOptions(true))

	// these fields will be used for filtering logs
	jsonHandler = jsonHandler.WithAttrs(defaultAttrs)

	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
}
