package store

// Citation is the user-safe projection of a Document. It never carries text.
type Citation struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	LectureID    string  `json:"lecture_id,omitempty"`
	TranscriptID string  `json:"transcript_id,omitempty"`
	ChunkID      string  `json:"chunk_id,omitempty"`
	Subject      string  `json:"subject,omitempty"`
	SubjectID    string  `json:"subject_id,omitempty"`
	Topics       string  `json:"topics,omitempty"`
	Chapter      string  `json:"chapter,omitempty"`
	ClassName    string  `json:"class_name,omitempty"`
	ClassID      string  `json:"class_id,omitempty"`
	TeacherName  string  `json:"teacher_name,omitempty"`
	TeacherID    string  `json:"teacher_id,omitempty"`
}

// Usage accumulates LLM accounting for a turn or a step.
type Usage struct {
	LLMCalls     int `json:"llm_calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		LLMCalls:     u.LLMCalls + o.LLMCalls,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
