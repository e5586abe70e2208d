package commands

import (
	"strconv"

	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/spf13/cobra"
)

// QuizView is the output of quiz show
type QuizView struct {
	ID        int64                      `yaml:"id"`
	State     string                     `yaml:"state"`
	SourceKey string                     `yaml:"source_key"`
	Title     string                     `yaml:"title,omitempty"`
	Questions []models.GeneratedQuestion `yaml:"questions,omitempty"`
}

// QuizCommands returns the quiz inspection commands
func QuizCommands(store serviceinterfaces.QuizStore) *cobra.Command {
	quizCmd := &cobra.Command{
		Use:   "quiz",
		Short: "Inspect stored quizzes",
	}

	quizCmd.AddCommand(&cobra.Command{
		Use:   "show <identity> <quiz-id>",
		Short: "Show a quiz with its questions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || quizID <= 0 {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid quiz id %q", args[1])
			}

			lookup, err := store.FindQuizByID(cmd.Context(), args[0], quizID)
			if err != nil {
				return err
			}

			view := QuizView{
				ID:        lookup.QuizID,
				State:     lookup.State.String(),
				SourceKey: lookup.SourceKey,
				Title:     lookup.Title,
			}
			for _, q := range lookup.Questions {
				view.Questions = append(view.Questions, q.ToGenerated())
			}
			return printYAML(cmd.OutOrStdout(), view)
		},
	})

	return quizCmd
}
