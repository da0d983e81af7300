package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/artifacts"
	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/browser/htmlpage"
	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/observability"
)

const inspectArtifactID = "inspect"

func newInspectCmd() *cobra.Command {
	var htmlFile string

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Shows which strategies find the input and output surfaces",
		Long: `Resolves the input and output surfaces of the target page and prints the
winning strategy for each role. With --html a saved page is inspected through
the static driver; otherwise the live target is opened and a debug screenshot
is written to the artifacts directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			resolver, err := browser.NewResolverFromConfig(logger, cfg.Resolver())
			if err != nil {
				return err
			}

			if htmlFile != "" {
				page, err := openStaticPage(htmlFile)
				if err != nil {
					return err
				}
				defer page.Close(cmd.Context())
				return inspectPage(cmd.Context(), cmd.OutOrStdout(), resolver, page)
			}
			return inspectLive(cmd.Context(), cmd.OutOrStdout(), cfg, resolver, logger)
		},
	}
	inspectCmd.Flags().StringVar(&htmlFile, "html", "", "Inspect a saved HTML file instead of the live target.")
	return inspectCmd
}

func openStaticPage(path string) (*htmlpage.Page, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, err
	}
	return htmlpage.FromReader("file://"+filepath.ToSlash(abs), f)
}

func inspectLive(ctx context.Context, out io.Writer, cfg config.Interface, resolver *browser.Resolver, logger *zap.Logger) error {
	manager, err := newBrowserManager(ctx, logger, cfg.Browser())
	if err != nil {
		return fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}()

	sess, err := manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer sess.Close(context.WithoutCancel(ctx))

	navCtx, cancel := context.WithTimeout(ctx, cfg.Invoker().NavigationTimeout)
	defer cancel()
	if err := sess.Navigate(navCtx, cfg.Target().URL); err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	if err := sess.WaitQuiescent(navCtx, cfg.Invoker().QuiescenceWindow); err != nil {
		logger.Warn("Target did not go quiet, inspecting anyway.", zap.Error(err))
	}

	inspectErr := inspectPage(ctx, out, resolver, sess)

	sink, err := artifacts.NewFileSink(cfg.Runner().ArtifactsDir)
	if err != nil {
		return errors.Join(inspectErr, err)
	}
	data, err := sess.Screenshot(ctx)
	if err != nil {
		return errors.Join(inspectErr, fmt.Errorf("capture screenshot: %w", err))
	}
	path, err := sink.SavePNG(ctx, inspectArtifactID, "debug", data)
	if err != nil {
		return errors.Join(inspectErr, err)
	}
	fmt.Fprintf(out, "screenshot  %s\n", path)
	return inspectErr
}

// inspectPage prints one line per role. A role that cannot be resolved is
// reported and turns into an error once both roles were tried.
func inspectPage(ctx context.Context, out io.Writer, resolver *browser.Resolver, page browser.Page) error {
	var errs []error
	for _, role := range []browser.Role{browser.RoleInput, browser.RoleOutput} {
		h, err := resolver.Resolve(ctx, page, role)
		if err != nil {
			fmt.Fprintf(out, "%-7s NOT FOUND  %v\n", role, err)
			errs = append(errs, err)
			continue
		}
		text, err := page.TextContent(ctx, h.Ref)
		if err != nil {
			text = "<" + err.Error() + ">"
		}
		fmt.Fprintf(out, "%-7s %-26s %q\n", role, h.Strategy, text)
	}
	return errors.Join(errs...)
}
