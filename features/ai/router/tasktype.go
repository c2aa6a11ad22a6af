package router

import (
	"strings"
	"unicode"
)

// TaskType categorizes an AI request so the router can pick a provider suited
// to the work.
type TaskType string

const (
	// TaskSentimentAnalysis classifies emotional tone.
	TaskSentimentAnalysis TaskType = "sentiment_analysis"
	// TaskSummarization condenses text.
	TaskSummarization TaskType = "summarization"
	// TaskTranslation translates between languages.
	TaskTranslation TaskType = "translation"
	// TaskCodeGeneration produces or explains code.
	TaskCodeGeneration TaskType = "code_generation"
	// TaskMathReasoning solves calculations and equations.
	TaskMathReasoning TaskType = "math_reasoning"
	// TaskQuickDecision answers short decision prompts.
	TaskQuickDecision TaskType = "quick_decision"
	// TaskTextAnalysis performs general analysis.
	TaskTextAnalysis TaskType = "text_analysis"
	// TaskDataExtraction pulls structured data out of text.
	TaskDataExtraction TaskType = "data_extraction"
	// TaskChinese handles prompts containing CJK text.
	TaskChinese TaskType = "chinese_tasks"
	// TaskLongContext handles prompts exceeding the long-prompt threshold.
	TaskLongContext TaskType = "long_context"
	// TaskContentGeneration is the default task type.
	TaskContentGeneration TaskType = "content_generation"
)

// longPromptThreshold is the prompt length beyond which a request is treated
// as long-context work.
const longPromptThreshold = 2000

// keywordRules maps prompt keywords to task types, checked in order.
var keywordRules = []struct {
	keywords []string
	task     TaskType
}{
	{[]string{"sentiment", "emotion"}, TaskSentimentAnalysis},
	{[]string{"summarize", "summary"}, TaskSummarization},
	{[]string{"translate", "translation"}, TaskTranslation},
	{[]string{"code", "program", "function"}, TaskCodeGeneration},
	{[]string{"math", "calculate", "equation"}, TaskMathReasoning},
	{[]string{"decide", "choose", "quick"}, TaskQuickDecision},
	{[]string{"analyze", "analysis"}, TaskTextAnalysis},
	{[]string{"extract", "extraction"}, TaskDataExtraction},
}

// DetectTaskType infers a task type from prompt content: keyword rules first,
// then CJK detection, then the long-prompt threshold, defaulting to content
// generation.
func DetectTaskType(prompt string) TaskType {
	lower := strings.ToLower(prompt)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.task
			}
		}
	}
	if containsCJK(prompt) {
		return TaskChinese
	}
	if len(prompt) > longPromptThreshold {
		return TaskLongContext
	}
	return TaskContentGeneration
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
