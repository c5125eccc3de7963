package bridge

import (
	"strconv"
	"strings"
)

// Event types delivered on a search stream. A stream ends with done
// after a bestmove, or with a single error event.
const (
	EventInfo     = "info"
	EventBestMove = "bestmove"
	EventDone     = "done"
	EventError    = "error"
)

type Event struct {
	Type    string   `json:"type"`
	Move    string   `json:"move,omitempty"`
	Depth   int      `json:"depth,omitempty"`
	Nodes   int64    `json:"nodes,omitempty"`
	NPS     int64    `json:"nps,omitempty"`
	ScoreCP *int     `json:"cp,omitempty"`
	Mate    *int     `json:"mate,omitempty"`
	PV      []string `json:"pv,omitempty"`
	Text    string   `json:"text,omitempty"`
	Message string   `json:"message,omitempty"`
}

// parseInfo turns a worker "info ..." line into a structured event.
// Unknown tokens are skipped; the line format is
// "info depth D nodes N nps N score cp|mate X pv m1 m2 ...".
func parseInfo(line string) Event {
	ev := Event{Type: EventInfo}
	fields := strings.Fields(line)
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				ev.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				ev.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "nps":
			if i+1 < len(fields) {
				ev.NPS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						ev.ScoreCP = &n
					case "mate":
						ev.Mate = &n
					}
				}
				i += 2
			}
		case "pv":
			ev.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			ev.Text = strings.Join(fields[i+1:], " ")
			i = len(fields)
		}
	}
	return ev
}
