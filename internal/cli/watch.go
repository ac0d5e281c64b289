package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logging"
)

// NewWatchCmd follows a running server's quiz state from the terminal.
func NewWatchCmd() *cobra.Command {
	var (
		baseURL      string
		username     string
		password     string
		pollInterval time.Duration
		maxAttempts  int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live quiz state (push with polling fallback)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(os.Getenv("LOG_LEVEL"), "text")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if password == "" {
				password = os.Getenv("QUIZ_PASSWORD")
			}
			token, err := client.Login(ctx, nil, baseURL, username, password)
			if err != nil {
				return err
			}

			w := client.New(client.Config{
				BaseURL:      baseURL,
				Token:        token,
				MaxAttempts:  maxAttempts,
				PollInterval: pollInterval,
				Logger:       log,
			}, func(s domain.QuizSnapshot) {
				log.Info("quiz state",
					"phase", s.Phase,
					"cycle", s.Cycle,
					"version", s.Version,
					"questions", s.QuestionCount,
				)
			})
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&username, "username", os.Getenv("QUIZ_USERNAME"), "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password (or QUIZ_PASSWORD)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 3*time.Second, "state polling interval after push fails")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "reconnect attempts before falling back to polling")
	return cmd
}
