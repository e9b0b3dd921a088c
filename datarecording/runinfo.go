package datarecording

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type runInfo struct {
	Property string
	Value    string
}

const timeFormat = "2006-01-02 15:04:05.000000000"

// RunInfoRecorder records the properties of one run (command line, start and
// end time, seed and so on) as property/value rows.
type RunInfoRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []runInfo
}

// NewRunInfoRecorder creates the run_info table on the recorder.
func NewRunInfoRecorder(recorder DataRecorder) (*RunInfoRecorder, error) {
	r := &RunInfoRecorder{
		tableName: "run_info",
		recorder:  recorder,
	}

	if err := recorder.CreateTable(r.tableName, runInfo{}); err != nil {
		return nil, err
	}

	return r, nil
}

// Start records the start time and the command line.
func (r *RunInfoRecorder) Start() {
	r.Set("Start Time", time.Now().Format(timeFormat))
	r.Set("Command", strings.Join(os.Args, " "))
}

// Set records one property. Values are formatted with %v.
func (r *RunInfoRecorder) Set(property string, value any) {
	r.entries = append(r.entries, runInfo{
		Property: property,
		Value:    fmt.Sprintf("%v", value),
	})
}

// End records the end time and writes all the properties.
func (r *RunInfoRecorder) End() error {
	r.Set("End Time", time.Now().Format(timeFormat))

	for _, entry := range r.entries {
		if err := r.recorder.InsertData(r.tableName, entry); err != nil {
			return err
		}
	}

	r.entries = nil

	return r.recorder.Flush()
}
