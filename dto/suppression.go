package dto

type ImportResult struct {
	Imported     int   `json:"imported"`
	Skipped      int   `json:"skipped"`
	SkippedLines []int `json:"skippedLines,omitempty"`
}
