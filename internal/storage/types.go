package storage

import "ielts-speaking/internal/speaking"

// TestResult is the archived record of one finished speaking test.
type TestResult struct {
	TestID       string           `json:"test_id"`
	Timestamp    string           `json:"timestamp"`
	Candidate    string           `json:"candidate,omitempty"`
	Conversation []speaking.Turn  `json:"conversation"`
	Report       *speaking.Report `json:"report,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Summary is the listing entry for an archived result.
type Summary struct {
	TestID       string  `json:"test_id"`
	Timestamp    string  `json:"timestamp"`
	OverallScore float64 `json:"overall_score,omitempty"`
}
