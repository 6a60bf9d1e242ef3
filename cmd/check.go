// cmd/check.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/mention"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/readiness"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/submit"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/synthesizer"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/upload"
	"github.com/xkilldash9x/synthcheck-cli/internal/browser/session"
	"github.com/xkilldash9x/synthcheck-cli/internal/config"
	"github.com/xkilldash9x/synthcheck-cli/internal/notify"
	"github.com/xkilldash9x/synthcheck-cli/internal/observability"
	"github.com/xkilldash9x/synthcheck-cli/internal/orchestrator"
	"github.com/xkilldash9x/synthcheck-cli/internal/store"
)

var checkFlags struct {
	imageURL    string
	question    string
	requestFile string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one image provenance check against the chat app.",
	Long: `Opens the configured chat application, mentions the provenance bot,
attaches the image under check and sends the question. The request comes
either from --image-url/--question or from a pending request file.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkFlags.imageURL, "image-url", "", "URL of the image to check")
	checkCmd.Flags().StringVar(&checkFlags.question, "question", "Was this image generated or modified by AI?", "question to ask about the image")
	checkCmd.Flags().StringVar(&checkFlags.requestFile, "request-file", "", "path to a pending request JSON file (overrides --image-url)")
	checkCmd.Flags().String("chat-url", "", "chat application URL (overrides config)")
	checkCmd.Flags().Bool("headless", false, "run the browser headless")
	checkCmd.Flags().String("events-out", "", `terminal event output: "-" for stdout or a file path (overrides config)`)

	must(viper.BindPFlag("browser.chat_url", checkCmd.Flags().Lookup("chat-url")))
	must(viper.BindPFlag("browser.headless", checkCmd.Flags().Lookup("headless")))
	must(viper.BindPFlag("events.output", checkCmd.Flags().Lookup("events-out")))

	rootCmd.AddCommand(checkCmd)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	requests, err := buildRequestStore(logger)
	if err != nil {
		return err
	}

	eventsOut, closeEvents, err := openEventsOutput(cfg.Events.Output)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx := cmd.Context()

	var history *store.History
	if cfg.Database.URL != "" {
		history, err = store.NewHistory(ctx, cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer history.Close()
		if err := history.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	sess, err := session.New(ctx, cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			logger.Warn("Browser session close failed.", zap.Error(err))
		}
	}()

	auto := cfg.Automation
	loc := locator.New(sess, logger)
	detector := readiness.New(sess, loc, auto.SettleInterval, auto.ReadyPoll, auto.ReadyTimeout, logger)
	synth := synthesizer.New(sess, auto.KeystrokeDelay, logger)
	composer := mention.New(synth, loc, sess, mention.Options{
		Token:             auto.MentionToken,
		Filter:            auto.MentionFilter,
		SuggestionPoll:    auto.SuggestionPoll,
		SuggestionTimeout: auto.SuggestionTimeout,
		CommitSettle:      auto.CommitSettle,
		CommitRetries:     auto.CommitRetries,
	}, logger)
	fetcher := upload.NewFetcher(&http.Client{}, sess, auto.FetchTimeout, logger)
	uploader := upload.New(sess, synth, loc, upload.Options{
		UploadSettle:           auto.UploadSettle,
		DragSettle:             auto.DragSettle,
		ProceedWithoutVerified: auto.ProceedWithoutVerifiedUpload,
	}, logger)
	sender := submit.New(sess, synth, loc, logger)

	orch := orchestrator.New(
		requests, sess, detector, composer, fetcher, uploader, sender,
		notify.NewLogNotifier(logger), notify.NewReporter(eventsOut), history,
		orchestrator.Options{ChatURL: cfg.Browser.ChatURL, StaleAfter: auto.StaleAfter},
		logger,
	)

	if err := orch.RunNext(ctx); err != nil {
		if errors.Is(err, store.ErrNoPending) {
			return fmt.Errorf("nothing to do: %w", err)
		}
		return err
	}
	return nil
}

// buildRequestStore materializes the pending check either from the request
// file handed to --request-file or from the command line flags.
func buildRequestStore(logger *zap.Logger) (store.RequestStore, error) {
	if checkFlags.requestFile != "" {
		return store.NewFileStore(checkFlags.requestFile, logger), nil
	}
	if checkFlags.imageURL == "" {
		return nil, fmt.Errorf("either --image-url or --request-file is required")
	}

	s := store.NewMemoryStore()
	err := s.Put(schemas.PendingCheck{
		ID:        uuid.New().String(),
		ImageURL:  checkFlags.imageURL,
		Question:  checkFlags.question,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openEventsOutput resolves the terminal event sink. "-" is stdout; a path
// is opened for append so repeated runs share one event log.
func openEventsOutput(output string) (io.Writer, func(), error) {
	if output == "" || output == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening events output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
