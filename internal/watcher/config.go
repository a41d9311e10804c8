package watcher

import "time"

type Config struct {
	Enabled        bool          `json:"enabled"`
	DebounceWindow time.Duration `json:"debounce_window"`
	MaxBatchSize   int           `json:"max_batch_size"`
	IgnorePatterns []string      `json:"ignore_patterns"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		DebounceWindow: 300 * time.Millisecond,
		MaxBatchSize:   32,
		IgnorePatterns: []string{
			// sqlite sidecar files churn on every read and checkpoint
			"*.db-shm",
			"*.db-wal",
			"*.db-journal",
			"*.tmp",
			"*.lock",
			"*.pid",
			"*.sock",
		},
	}
}
