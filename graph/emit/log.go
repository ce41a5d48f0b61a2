package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes one line per event to a writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable key=value pairs
//   - JSON mode: the canonical payload plus task_id, one event per line
//
// Example text output:
//
//	[node_end] task=task-3f2a9c01de run=01J9Z... state=PLAN node=router type=router success=true elapsed_ns=41200
//
// Example JSON output:
//
//	{"controller_state":"PLAN","elapsed_ns":41200,"event_type":"node_end","node_id":"router",...,"task_id":"task-3f2a9c01de"}
//
// Usage:
//
//	emitter := emit.NewLogEmitter(os.Stderr, false)
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter. A nil writer writes to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes an event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	payload := event.Payload()
	payload["task_id"] = event.TaskID

	data, err := json.Marshal(payload)
	if err != nil {
		// Fallback to error message if marshal fails
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] task=%s run=%s state=%s node=%s type=%s success=%t",
		event.EventType, event.TaskID, event.RunID, event.ControllerState,
		event.NodeID, event.NodeType, event.Success)

	if event.StartOffsetNS != nil {
		fmt.Fprintf(l.writer, " start_offset_ns=%d", *event.StartOffsetNS)
	}
	if event.ElapsedNS != nil {
		fmt.Fprintf(l.writer, " elapsed_ns=%d", *event.ElapsedNS)
	}
	if event.Error != "" {
		fmt.Fprintf(l.writer, " error=%q", event.Error)
	}

	fmt.Fprint(l.writer, "\n")
}
