package logfmt

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// MyFormatter 按级别着色的单行日志格式
type MyFormatter struct{}

var _ logrus.Formatter = (*MyFormatter)(nil)

var levelColors = map[logrus.Level]*color.Color{
	logrus.DebugLevel: color.New(color.FgCyan),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

func (f *MyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	c := levelColors[entry.Level]
	if c == nil {
		c = color.New(color.FgWhite)
	}
	var buf bytes.Buffer
	c.Fprintf(&buf, "[%s]", entry.Level.String())
	fmt.Fprintf(&buf, " %s", entry.Time.Format("15:04:05.000"))
	if entry.HasCaller() {
		fmt.Fprintf(&buf, " %s:%d",
			filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	fmt.Fprintf(&buf, " %s", entry.Message)
	for k, v := range entry.Data {
		fmt.Fprintf(&buf, " %s=%v", k, v)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
