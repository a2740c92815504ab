package agent

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/intar-dev/intar-cli/internal/agentclient"
	"go.uber.org/zap"
)

// startTime anchors uptime_secs in Ping responses.
var startTime = time.Now()

// Loop owns the device handle and serializes writes so two replies can
// never interleave on the wire (spec.md §4.2 point 4).
type Loop struct {
	device io.ReadWriter
	log    *zap.Logger
	writeMu sync.Mutex
}

// New constructs a Loop over an already-open device.
func New(device io.ReadWriter, log *zap.Logger) *Loop {
	return &Loop{device: device, log: log}
}

// Run reads newline-delimited requests until the device returns EOF or an
// unrecoverable read error, dispatching each to Dispatch and writing back
// exactly one reply line per request. It never pipelines: one in-flight
// request at a time, matching §5.
func (l *Loop) Run() error {
	scanner := bufio.NewScanner(l.device)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		lineCopy := append([]byte(nil), line...)

		var req agentclient.Request
		if err := json.Unmarshal(lineCopy, &req); err != nil {
			l.reply(agentclient.Response{Type: "error", Message: "malformed request: " + err.Error()})
			continue
		}

		resp := Dispatch(req)
		resp.ReqID = req.ReqID
		l.reply(resp)
	}
	return scanner.Err()
}

// reply serializes resp and writes it as a single atomic write, holding
// writeMu for the duration so concurrent callers (there are none today,
// since Run dispatches serially, but probe evaluators could in principle
// run a goroutine) can never interleave bytes.
func (l *Loop) reply(resp agentclient.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		l.log.Error("failed to marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.device.Write(data); err != nil {
		l.log.Error("failed to write response", zap.Error(err))
	}
}

// Uptime returns seconds since the agent process started.
func Uptime() int64 {
	return int64(time.Since(startTime).Seconds())
}
