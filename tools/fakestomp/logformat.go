package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// colorFormatter renders "time | LEVEL | message key=value" with the level
// coloured by severity.
type colorFormatter struct {
	TimestampFormat string
}

func (formatter *colorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	switch entry.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		level = color.MagentaString("%-5s", level)
	case logrus.InfoLevel:
		level = color.BlueString("%-5s", level)
	case logrus.WarnLevel:
		level = color.YellowString("%-5s", level)
	case logrus.ErrorLevel:
		level = color.RedString("%-5s", level)
	default:
		level = color.HiRedString("%-5s", level)
	}

	var line bytes.Buffer
	fmt.Fprintf(&line, "%s | %s | %s",
		color.GreenString(entry.Time.Format(formatter.TimestampFormat)),
		level,
		color.CyanString(entry.Message),
	)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		line.WriteString(color.CyanString(" %s=%v", key, entry.Data[key]))
	}
	line.WriteByte('\n')
	return line.Bytes(), nil
}
