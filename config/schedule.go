package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/study-planner/planner-core/internal/domain/task"
)

// scheduleFile is the YAML form of the spacing schedule:
//
//	default: [4]
//	types:
//	  study: [1, 7, 30]
//	  review: [2, 5, 14]
type scheduleFile struct {
	Default []int            `yaml:"default"`
	Types   map[string][]int `yaml:"types"`
}

// Table returns the interval table the configuration describes.
func (c ScheduleConfig) Table() (*task.IntervalTable, error) {
	if c.IntervalsFile != "" {
		return LoadIntervalFile(c.IntervalsFile)
	}
	return task.ParseIntervalTable(c.Intervals)
}

// LoadIntervalFile reads a YAML schedule file.
func LoadIntervalFile(path string) (*task.IntervalTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	return ParseIntervalYAML(data)
}

// ParseIntervalYAML parses the YAML schedule format.
func ParseIntervalYAML(data []byte) (*task.IntervalTable, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}

	byType := make(map[task.TaskType][]int, len(file.Types))
	for name, days := range file.Types {
		t, err := task.ParseTaskType(name)
		if err != nil {
			return nil, err
		}
		byType[t] = days
	}
	return task.NewIntervalTable(byType, file.Default)
}
