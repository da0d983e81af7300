package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/browser/htmlpage"
	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/observability"
)

const targetURL = "https://www.swifttranslator.com/"

const translatorDoc = `<html><body>
<h1>Singlish to Sinhala</h1>
<textarea id="in"></textarea>
<textarea id="out" readonly></textarea>
</body></html>`

var dictionary = map[string]string{
	"mudhalaali siini kiranavaa": "මුදලාලි සීනි කිරනවා",
}

// resetForTest isolates a test from the environment and from earlier tests.
// Settling and quiescence are shortened so runs against the static driver
// finish quickly.
func resetForTest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	t.Setenv("SINGLISH_LOGGER_LEVEL", "fatal")
	t.Setenv("SINGLISH_LOGGER_LOG_FILE", filepath.Join(dir, "singlish-check.log"))
	t.Setenv("SINGLISH_RUNNER_ARTIFACTS_DIR", filepath.Join(dir, "artifacts"))
	t.Setenv("SINGLISH_INVOKER_SETTLE_MODE", config.SettleFixed)
	t.Setenv("SINGLISH_INVOKER_SETTLE_DELAY", "5ms")
	t.Setenv("SINGLISH_INVOKER_QUIESCENCE_WINDOW", "1ms")
	t.Setenv("SINGLISH_DATABASE_URL", "")

	origManager, origStore := newBrowserManager, openStore
	t.Cleanup(func() {
		newBrowserManager, openStore = origManager, origStore
	})
	newBrowserManager = func(context.Context, *zap.Logger, config.BrowserConfig) (browser.Manager, error) {
		return htmlpage.NewManager(
			htmlpage.WithDocument(targetURL, translatorDoc),
			htmlpage.WithOnFill(func(p *htmlpage.Page, text string) {
				_ = p.SetText("#out", dictionary[text])
			}),
		), nil
	}
	return dir
}

// executeCommand runs a fresh command tree and returns everything it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
