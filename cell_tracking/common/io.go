package common

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadProblem reads one tracking problem from a JSON file.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file %s: %w", path, err)
	}
	var problem Problem
	if err := json.Unmarshal(data, &problem); err != nil {
		return nil, fmt.Errorf("failed to parse problem file %s: %w", path, err)
	}
	if len(problem.Detections) == 0 {
		return nil, fmt.Errorf("problem file %s contains no detections", path)
	}
	return &problem, nil
}

// SaveResult writes a tracking result to a JSON file.
func SaveResult(path string, result *TrackingResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result file %s: %w", path, err)
	}
	return nil
}
