package link

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
)

// readDiagnostics logs every newline-terminated line the unit prints until
// the port is closed.
func (l *Link) readDiagnostics(r io.Reader, done chan<- struct{}) {
	defer close(done)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		l.unitLog.Info(line)
	}
	if err := sc.Err(); err != nil {
		l.log.Debug("diagnostics reader stopped", slog.String("error", err.Error()))
	}
}
