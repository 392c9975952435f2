package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTable is the table that holds the execution information of a run.
const ExecTable = "exec_info"

// ExecInfo is one property of the program execution.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records when and how the program ran.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the execution table in recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTable, ExecInfo{})

	return &ExecRecorder{recorder: recorder}
}

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// Start logs the current execution.
func (e *ExecRecorder) Start() {
	e.entries = append(e.entries,
		ExecInfo{"Start Time", time.Now().Format(execTimeFormat)},
		ExecInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, ExecInfo{"Working Directory", cwd})
	}
}

// Set adds a property of the run, such as a configuration value.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes the collected properties along with the exit time.
func (e *ExecRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.recorder.InsertData(ExecTable,
		ExecInfo{"End Time", time.Now().Format(execTimeFormat)})

	e.entries = nil

	e.recorder.Flush()
}
