package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectTaskType(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
		want   TaskType
	}{
		{"sentiment", "What is the Sentiment of this review?", TaskSentimentAnalysis},
		{"emotion", "Describe the emotion in this message", TaskSentimentAnalysis},
		{"summarize", "Summarize the meeting notes", TaskSummarization},
		{"translate", "Translate this to French", TaskTranslation},
		{"code", "Write a function that reverses a string", TaskCodeGeneration},
		{"math", "Calculate the compound interest", TaskMathReasoning},
		{"decision", "Choose the best shipping option", TaskQuickDecision},
		{"analysis", "Analyze the quarterly figures", TaskTextAnalysis},
		{"extraction", "Extract the invoice number", TaskDataExtraction},
		{"chinese", "请介绍一下这个产品", TaskChinese},
		{"long context", strings.Repeat("lorem ipsum ", 200), TaskLongContext},
		{"default", "Tell me a story", TaskContentGeneration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DetectTaskType(tc.prompt))
		})
	}
}

func TestDetectTaskTypeKeywordBeatsLength(t *testing.T) {
	prompt := "Summarize this: " + strings.Repeat("word ", 600)
	require.Equal(t, TaskSummarization, DetectTaskType(prompt))
}
