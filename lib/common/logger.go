package common

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int32

const (
	DEBUG_INFO_DETAIL LogLevel = 1
	DEBUG_INFO        LogLevel = 2
	RDB_OP_FUNC_CALL  LogLevel = 4
	DEBUGGING         LogLevel = 8
	INFO              LogLevel = 16
	WARN              LogLevel = 32
	ERROR             LogLevel = 64
	FATAL             LogLevel = 128
)

var LogLevelSetting LogLevel = WARN | ERROR | FATAL

// ShPrintf is the hot-path trace printer. Kept printf based because it is
// called from latch-holding code where a structured logger is too heavy.
func ShPrintf(logLevel LogLevel, fmtStl string, a ...interface{}) {
	if logLevel&LogLevelSetting > 0 {
		fmt.Printf(fmtStl, a...)
	}
}

// Logger is the engine level structured logger. Component lifecycle events
// (detector victims, flush failures, engine start/stop) go through here.
var Logger *logrus.Logger = newEngineLogger("warn")

type engineLogFormatter struct{}

func (f *engineLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("15:04:05 MST 2006/01/02")
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	msg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, entry.Message)
	for k, v := range entry.Data {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	return []byte(msg + "\n"), nil
}

func newEngineLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&engineLogFormatter{})
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.WarnLevel
	}
	logger.SetLevel(lv)
	return logger
}

// InitLogger reconfigures the engine logger with the given logrus level name.
func InitLogger(level string) {
	Logger = newEngineLogger(level)
}
