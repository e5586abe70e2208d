package services

import (
	"embed"
	"strings"
	"text/template"

	contextutils "github.com/EliSopMes/immersive-server/internal/utils"
)

//go:embed templates/*.tmpl
var aiTemplatesFS embed.FS

// Template names as constants
const (
	QuizSystemTemplate      = "quiz_system.tmpl"
	QuizUserTemplate        = "quiz_user.tmpl"
	SimplifySystemTemplate  = "simplify_system.tmpl"
	SimplifyUserTemplate    = "simplify_user.tmpl"
	DefineSystemTemplate    = "define_system.tmpl"
	DefineUserTemplate      = "define_user.tmpl"
	TranslateSystemTemplate = "translate_system.tmpl"
	TranslateUserTemplate   = "translate_user.tmpl"
)

// AITemplateData holds data for rendering AI prompt templates
type AITemplateData struct {
	// Quiz shape
	QuestionCount      int
	ChoicesPerQuestion int
	MaxAnswerIndex     int

	// Input text (or source URL) and learner level
	Text  string
	Level string
}

// AITemplateManager manages AI prompt templates
type AITemplateManager struct {
	templates *template.Template
}

// NewAITemplateManager parses the embedded prompt templates
func NewAITemplateManager() (result0 *AITemplateManager, err error) {
	templates, err := template.New("").ParseFS(aiTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	return &AITemplateManager{
		templates: templates,
	}, nil
}

// RenderTemplate renders a template with the given data
func (tm *AITemplateManager) RenderTemplate(templateName string, data AITemplateData) (result0 string, err error) {
	var buf strings.Builder
	if err = tm.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to render %s: %w", templateName, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
