package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

// spamWarnThreshold is the repetition count above which the CLI asks first
const spamWarnThreshold = 10

var (
	runCount      int
	runHeadless   bool
	runYes        bool
	loginHeadless bool
)

var loginCmd = &cobra.Command{
	Use:   "login <profile>",
	Short: "Open a browser and set up the profile's session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(cmd, args[0], loginHeadless, func(ctx context.Context, b *bot.Bot) bool {
			return b.Login(ctx)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <profile> <post-url> <comment>",
	Short: "Post a comment on a post, optionally several times",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := bot.RunParams{PostURL: args[1], Comment: args[2], Count: runCount}
		if err := validateRun(params, cfg.Site.HomeURL); err != nil {
			return err
		}

		if params.Count > spamWarnThreshold && !runYes {
			fmt.Fprintf(cmd.ErrOrStderr(), "Posting more than %d comments may trigger spam detection!\n", spamWarnThreshold)
			if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Continue? (y/n): ") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted by user")
				return nil
			}
		}

		return runForeground(cmd, args[0], runHeadless, func(ctx context.Context, b *bot.Bot) bool {
			return b.Run(ctx, params)
		})
	},
}

func init() {
	runCmd.Flags().IntVarP(&runCount, "count", "n", 1, "number of times to post the comment")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run the browser without a window")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "skip the confirmation for large counts")

	loginCmd.Flags().BoolVar(&loginHeadless, "headless", false, "run the browser without a window")
}

// validateRun checks the arguments of a CLI run against the configured site
func validateRun(p bot.RunParams, homeURL string) error {
	if p.Count < 1 {
		return apperr.Validation("comment count must be at least 1")
	}
	if strings.TrimSpace(p.Comment) == "" {
		return apperr.Validation("comment must not be empty")
	}

	post, err := url.Parse(p.PostURL)
	if err != nil || (post.Scheme != "http" && post.Scheme != "https") {
		return apperr.Validation("invalid post URL %q", p.PostURL)
	}
	home, err := url.Parse(homeURL)
	if err == nil && home.Hostname() != "" {
		site := strings.TrimPrefix(home.Hostname(), "www.")
		if !strings.HasSuffix(post.Hostname(), site) {
			return apperr.Validation("post URL must be on %s", site)
		}
	}
	return nil
}

// runForeground runs one bot in this process, printing its events
func runForeground(cmd *cobra.Command, name string, headless bool, work func(context.Context, *bot.Bot) bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.profiles.Get(name)
	if err != nil {
		return err
	}
	dir, err := a.sessions.Ensure(name)
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	bc := botConfig(cfg)
	bc.Profile = name
	bc.Credentials = models.Credentials{Username: p.Username, Password: p.Password}
	bc.ProfileDir = dir
	bc.Headless = a.headless(headless)
	bc.ManualConfirm = func(ctx context.Context) error {
		return waitForEnter(ctx, in)
	}

	b := bot.New(bc, a.launcher, consoleSink{out: cmd.OutOrStdout()}, logger.Named("bot"))
	if !work(ctx, b) {
		return fmt.Errorf("bot failed for profile %s", name)
	}
	return nil
}

// consoleSink prints bot events to the terminal
type consoleSink struct {
	out io.Writer
}

func (c consoleSink) Publish(e logbus.Event) {
	if e.Type == logbus.TypeFinished {
		return
	}
	fmt.Fprintf(c.out, "%s [%s] %s\n", e.Level, e.Timestamp.Format("15:04:05"), e.Message)
}

// waitForEnter blocks until a line is read or ctx is done
func waitForEnter(ctx context.Context, in *bufio.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := in.ReadString('\n')
		done <- err
	}()

	select {
	case err := <-done:
		if err == io.EOF {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
