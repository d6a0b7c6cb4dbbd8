package api

import "log"

// NopSink discards all events. It is the default sink.
type NopSink struct{}

func (NopSink) PreRead(string) {}
func (NopSink) PostRead(string, int, error) {}
func (NopSink) PreWrite(string) {}
func (NopSink) PostWrite(string, error) {}

// LogSink writes one line per event to a standard logger. A nil Logger
// uses the process default.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) printf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (s LogSink) PreRead(path string) {
	s.printf("read %s", path)
}

func (s LogSink) PostRead(path string, records int, err error) {
	if err != nil {
		s.printf("read %s failed: %v", path, err)
		return
	}
	s.printf("read %s: %d records", path, records)
}

func (s LogSink) PreWrite(path string) {
	s.printf("write %s", path)
}

func (s LogSink) PostWrite(path string, err error) {
	if err != nil {
		s.printf("write %s failed: %v", path, err)
		return
	}
	s.printf("wrote %s", path)
}
