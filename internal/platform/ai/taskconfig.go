package ai

import "fmt"

// TaskType identifies the kind of clinical document being generated.
type TaskType string

const (
	TaskNursingAssessment TaskType = "nursing-assessment"
	TaskSOAPNote          TaskType = "soap-note"
	TaskRiskAnalysis      TaskType = "risk-analysis"
	TaskCarePlan          TaskType = "care-plan"
	TaskDischargeSummary  TaskType = "discharge-summary"
)

// TaskTypes returns all recognized task types.
func TaskTypes() []TaskType {
	return []TaskType{
		TaskNursingAssessment,
		TaskSOAPNote,
		TaskRiskAnalysis,
		TaskCarePlan,
		TaskDischargeSummary,
	}
}

// Valid reports whether t is one of the recognized task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskNursingAssessment, TaskSOAPNote, TaskRiskAnalysis, TaskCarePlan, TaskDischargeSummary:
		return true
	}
	return false
}

// TaskConfig carries per-task generation settings. The orchestrator passes
// it through to the provider adapter without interpreting it; only the
// Keywords are read back when scoring confidence.
type TaskConfig struct {
	Model        string   `json:"model,omitempty"` // empty means the adapter's default
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// TaskConfigSet maps task types to their generation settings, validated once
// at startup instead of on every call.
type TaskConfigSet struct {
	configs map[TaskType]TaskConfig
}

// NewTaskConfigSet validates the given configs and returns the set.
func NewTaskConfigSet(configs map[TaskType]TaskConfig) (*TaskConfigSet, error) {
	for taskType, cfg := range configs {
		if !taskType.Valid() {
			return nil, fmt.Errorf("task config: unknown task type %q", taskType)
		}
		if cfg.Temperature < 0 || cfg.Temperature > 2 {
			return nil, fmt.Errorf("task config %s: temperature %v out of range [0, 2]", taskType, cfg.Temperature)
		}
		if cfg.MaxTokens <= 0 {
			return nil, fmt.Errorf("task config %s: max tokens must be positive, got %d", taskType, cfg.MaxTokens)
		}
	}
	copied := make(map[TaskType]TaskConfig, len(configs))
	for taskType, cfg := range configs {
		copied[taskType] = cfg
	}
	return &TaskConfigSet{configs: copied}, nil
}

// DefaultTaskConfigs returns the built-in settings for every task type.
func DefaultTaskConfigs() *TaskConfigSet {
	set, err := NewTaskConfigSet(map[TaskType]TaskConfig{
		TaskNursingAssessment: {
			Temperature:  0.3,
			MaxTokens:    1024,
			SystemPrompt: "You are a clinical documentation assistant. Draft a structured nursing assessment from the provided observations. Respond with a JSON object.",
			Keywords:     []string{"assessment", "vital", "mobility", "skin", "pain"},
		},
		TaskSOAPNote: {
			Temperature:  0.2,
			MaxTokens:    1024,
			SystemPrompt: "You are a clinical documentation assistant. Produce a SOAP note with subjective, objective, assessment, and plan sections. Respond with a JSON object.",
			Keywords:     []string{"subjective", "objective", "assessment", "plan"},
		},
		TaskRiskAnalysis: {
			Temperature:  0.1,
			MaxTokens:    768,
			SystemPrompt: "You are a clinical risk analyst. Summarize the patient's risk factors and suggest mitigations. Respond with a JSON object.",
			Keywords:     []string{"risk", "fall", "medication", "score", "mitigation"},
		},
		TaskCarePlan: {
			Temperature:  0.4,
			MaxTokens:    1536,
			SystemPrompt: "You are a clinical documentation assistant. Draft a nursing care plan with goals, interventions, and expected outcomes. Respond with a JSON object.",
			Keywords:     []string{"goal", "intervention", "outcome", "evaluation"},
		},
		TaskDischargeSummary: {
			Temperature:  0.3,
			MaxTokens:    1280,
			SystemPrompt: "You are a clinical documentation assistant. Draft a discharge summary with follow-up instructions. Respond with a JSON object.",
			Keywords:     []string{"discharge", "follow-up", "medication", "instruction"},
		},
	})
	if err != nil {
		panic(err)
	}
	return set
}

// Get returns the config for a task type.
func (s *TaskConfigSet) Get(taskType TaskType) (TaskConfig, bool) {
	cfg, ok := s.configs[taskType]
	return cfg, ok
}
