package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?[ \t]*```$")
)

// ParsedQuiz is validated model output ready to be materialized
type ParsedQuiz struct {
	Title     string
	Questions []models.GeneratedQuestion
}

// QuizParser turns raw model text into a validated question list
type QuizParser struct {
	questionCount      int
	choicesPerQuestion int
	schema             *gojsonschema.Schema
}

// NewQuizParser compiles the structural schema for quizzes of the given shape
func NewQuizParser(questionCount, choicesPerQuestion int) (*QuizParser, error) {
	if questionCount < 1 || choicesPerQuestion < 2 {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid quiz shape %d x %d", questionCount, choicesPerQuestion)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(quizSchema(questionCount, choicesPerQuestion)))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to compile quiz schema")
	}
	return &QuizParser{
		questionCount:      questionCount,
		choicesPerQuestion: choicesPerQuestion,
		schema:             schema,
	}, nil
}

func quizSchema(questionCount, choicesPerQuestion int) map[string]interface{} {
	return map[string]interface{}{
		"type":     "array",
		"minItems": questionCount,
		"maxItems": questionCount,
		"items": map[string]interface{}{
			"type":     "object",
			"required": []string{"question", "choices", "answer"},
			"properties": map[string]interface{}{
				"question": map[string]interface{}{"type": "string", "minLength": 1},
				"choices": map[string]interface{}{
					"type":     "array",
					"minItems": choicesPerQuestion,
					"maxItems": choicesPerQuestion,
					"items":    map[string]interface{}{"type": "string", "minLength": 1},
				},
				"answer": map[string]interface{}{
					"type":    "integer",
					"minimum": 0,
					"maximum": choicesPerQuestion - 1,
				},
			},
		},
	}
}

// StripCodeFence removes one optional leading fence (with language tag) and one optional trailing fence
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse validates raw model output. Any failure is an InvalidGenerationOutput error that
// carries the parser message and the raw text.
func (p *QuizParser) Parse(ctx context.Context, raw string) (result0 *ParsedQuiz, err error) {
	_, span := observability.TraceQuizFunction(ctx, "parse_quiz",
		attribute.Int("quiz.raw_length", len(raw)),
		attribute.Int("quiz.expected_questions", p.questionCount),
	)
	defer observability.FinishSpan(span, &err)

	body := StripCodeFence(raw)

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, contextutils.NewInvalidGenerationOutput(err.Error(), raw, err)
	}

	result, err := p.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, contextutils.NewInvalidGenerationOutput(err.Error(), raw, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, contextutils.NewInvalidGenerationOutput(strings.Join(problems, "; "), raw, nil)
	}

	var items []struct {
		Title    interface{} `json:"title"`
		Question string      `json:"question"`
		Choices  []string    `json:"choices"`
		Answer   float64     `json:"answer"`
	}
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, contextutils.NewInvalidGenerationOutput(err.Error(), raw, err)
	}

	questions := make([]models.GeneratedQuestion, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, contextutils.NewInvalidGenerationOutput(fmt.Sprintf("%d: question is blank", i), raw, nil)
		}
		for j, choice := range item.Choices {
			if strings.TrimSpace(choice) == "" {
				return nil, contextutils.NewInvalidGenerationOutput(fmt.Sprintf("%d.choices.%d: choice is blank", i, j), raw, nil)
			}
		}
		questions = append(questions, models.GeneratedQuestion{
			Question: item.Question,
			Choices:  item.Choices,
			Answer:   int(item.Answer),
		})
	}

	// only a non-blank string on the first item counts as a title
	title := config.UntitledQuiz
	if t, ok := items[0].Title.(string); ok && strings.TrimSpace(t) != "" {
		title = strings.TrimSpace(t)
	}
	span.SetAttributes(attribute.String("quiz.title", title))

	return &ParsedQuiz{Title: title, Questions: questions}, nil
}
