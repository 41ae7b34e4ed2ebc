package dto

import "time"

type TrainingResult struct {
	Mode      string   `json:"mode"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors"`
}

type TrainingStatus struct {
	LastRun           *time.Time `json:"lastRun,omitempty"`
	NextRunEstimate   time.Time  `json:"nextRunEstimate"`
	ActiveSenderCount int64      `json:"activeSenderCount"`
	AvgReputation     float64    `json:"avgReputation"`
	CurrentMode       string     `json:"currentMode"`
}

type Allowance struct {
	Email            string `json:"email"`
	DailyLimit       int    `json:"dailyLimit"`
	CurrentDailySent int    `json:"currentDailySent"`
	Remaining        int    `json:"remaining"`
}
