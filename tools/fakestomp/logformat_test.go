package main

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

func TestColorFormatterLayout(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = previous }()

	entry := logrus.NewEntry(logrus.New()).WithFields(logrus.Fields{"session": "s-1", "addr": "127.0.0.1:1"})
	entry.Time = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	entry.Level = logrus.WarnLevel
	entry.Message = "client heart-beat missed"

	formatter := &colorFormatter{TimestampFormat: "2006-01-02T15:04:05"}
	out, err := formatter.Format(entry)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	want := "2024-05-01T10:30:00 | WARNING | client heart-beat missed addr=127.0.0.1:1 session=s-1\n"
	if string(out) != want {
		t.Fatalf("unexpected line\n got %q\nwant %q", out, want)
	}
}
