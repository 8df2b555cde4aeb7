package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// State is the persistent scan state carried between runs
type State struct {
	LastRun              *time.Time `json:"last_run"`
	RepositoriesAnalyzed []string   `json:"repositories_analyzed"`
	PriorityQueue        []string   `json:"priority_queue"`
	TotalRuns            int        `json:"total_runs"`
	TotalValueIdentified int        `json:"total_value_identified"`
}

const stateFileName = ".state.json"

// LoadState reads the scan state from the given directory.
// A missing or corrupt file yields a zero state.
func LoadState(dir string) State {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}
	}

	return state
}

// SaveState writes the scan state into the given directory
func SaveState(dir string, state State) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, stateFileName), data, 0o644)
}
