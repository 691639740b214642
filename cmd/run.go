// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/browser"
	"github.com/wjleong/zxgkquery/internal/captcha"
	"github.com/wjleong/zxgkquery/internal/form"
	"github.com/wjleong/zxgkquery/internal/navigator"
	"github.com/wjleong/zxgkquery/internal/observability"
	"github.com/wjleong/zxgkquery/internal/records"
	"github.com/wjleong/zxgkquery/internal/retry"
	"github.com/wjleong/zxgkquery/internal/task"
)

// osExit is swappable for the force-exit test path.
var osExit = os.Exit

func newRunCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batch query against an input spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appConfig
			logger := observability.GetLogger()

			if outputPath == "" {
				outputPath = records.DefaultExportPath("results")
			}

			// Chrome occasionally fails to come up cleanly; retry the launch
			// with a fresh session each time.
			var session *browser.Session
			launch := retry.Options{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: 1}
			if err := retry.Do(ctx, logger, launch, func(ctx context.Context) error {
				session = browser.NewSession(cfg.Browser, cfg.Network, logger)
				if err := session.Open(ctx); err != nil {
					_ = session.Close()
					return err
				}
				return nil
			}); err != nil {
				return fmt.Errorf("opening browser: %w", err)
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn("Closing browser session failed.", zap.Error(err))
				}
			}()

			// First Ctrl-C requests a cooperative stop; the second one
			// abandons the run outright.
			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer func() {
				signal.Stop(sigCh)
				close(sigCh)
			}()
			go func() {
				if _, ok := <-sigCh; !ok {
					return
				}
				logger.Warn("Interrupt received, finishing the current record and exporting.")
				session.RequestStop()
				if _, ok := <-sigCh; ok {
					logger.Error("Second interrupt received, exiting immediately.")
					osExit(130)
				}
			}()

			pageSlot := session.WatchPath(cfg.Query.URL)
			captchaSlot := session.WatchPath(cfg.Query.CaptchaPath)

			nav := navigator.New(session, pageSlot, cfg.Network, cfg.Query.Retry, cfg.Query.DOMMarkers, logger)
			recognizer := captcha.NewHTTPRecognizer(cfg.OCR)
			solver := captcha.New(session, captchaSlot, recognizer, cfg.Query.Captcha, cfg.Query.Selectors.CaptchaImage, logger)
			interactor := form.New(session, cfg.Query.Selectors, cfg.Network.SettleWait, logger)
			source := records.NewExcelSource(cfg.Excel, logger)
			sink := records.NewExcelSink(logger)

			orch := task.New(cfg, nav, solver, interactor, source, sink, session, logger)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for p := range orch.Progress() {
					logger.Info("Progress.",
						zap.Int("index", p.Index),
						zap.Int("total", p.Total),
						zap.String("name", p.Record.Name),
						zap.String("message", p.Message))
				}
			}()

			summary, err := orch.Run(ctx, inputPath, outputPath)
			<-done
			if err != nil {
				return err
			}

			logger.Info("Run finished.",
				zap.String("status", summary.Status.String()),
				zap.Int("total", summary.Total),
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("failed", summary.Failed),
				zap.String("output", summary.OutputPath))
			return nil
		},
	}

	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input .xlsx file with ID numbers and names")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output .xlsx path (default results/查询结果_<timestamp>.xlsx)")
	_ = runCmd.MarkFlagRequired("input")

	return runCmd
}
