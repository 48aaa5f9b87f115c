package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Output is one JSON object
// per line on stdout; prefix and flags stay off so every line parses as-is.
// Tests redirect it with SetOutput.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Emit writes one structured JSON line. Request logging and the audit
// trail both funnel through here so the line format cannot drift between
// them. The returned error reports a marshal failure; a fallback line is
// written in that case so the event is not silently dropped.
func Emit(fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return err
	}
	Logger().Println(string(data))
	return nil
}
