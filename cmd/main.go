package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chat-widget/handler"
	"chat-widget/internal/config"
	"chat-widget/internal/logging"
	"chat-widget/internal/session"
	"chat-widget/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath  string
	endpoint    string
	sessionMode string
	store       string
	profile     string
	transcript  string
	logLevel    string
	noLoading   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "chat-widget",
		Short: "Terminal chat client for a /chat endpoint",
		Long: `chat-widget sends what you type to a chat server's /chat endpoint and
shows the replies. It runs a full-screen UI when attached to a terminal and
reads one message per line otherwise.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to the YAML config file (default $XDG_CONFIG_HOME/chat-widget/config.yaml)")
	pf.StringVar(&flags.endpoint, "endpoint", "", "chat server base URL")
	pf.StringVar(&flags.sessionMode, "session-mode", "", "session policy: persisted or server-issued")
	pf.StringVar(&flags.store, "store", "", "session store: memory, pebble or dynamodb")
	pf.StringVar(&flags.profile, "profile", "", "profile the persisted session belongs to")
	pf.StringVar(&flags.transcript, "transcript", "", "write the conversation as HTML to this file on exit")
	pf.StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn or error")
	pf.BoolVar(&flags.noLoading, "no-loading", false, "do not show the loading placeholder")

	root.AddCommand(newSendCmd(flags), newSessionCmd(flags))
	return root
}

// loadConfig applies flags the user actually set on top of the file and
// environment configuration, then sets up logging.
func loadConfig(cmd *cobra.Command, flags *rootFlags, quiet bool) (*config.Config, func() error, error) {
	cfg, err := config.Load(config.LoadOptions{Path: flags.configPath})
	if err != nil {
		return nil, nil, err
	}

	changed := cmd.Flags().Changed
	var o config.Overrides
	if changed("endpoint") {
		o.Endpoint = &flags.endpoint
	}
	if changed("session-mode") {
		o.SessionMode = &flags.sessionMode
	}
	if changed("store") {
		o.Store = &flags.store
	}
	if changed("profile") {
		o.Profile = &flags.profile
	}
	if changed("transcript") {
		o.Transcript = &flags.transcript
	}
	if changed("log-level") {
		o.LogLevel = &flags.logLevel
	}
	if changed("no-loading") {
		show := !flags.noLoading
		o.ShowLoading = &show
	}
	cfg.Apply(o)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	closeLog, err := logging.Setup(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Quiet: quiet,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

func isInteractiveTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func runInteractive(cmd *cobra.Command, flags *rootFlags) error {
	ctx := cmd.Context()
	useTUI := isInteractiveTerminal()

	cfg, closeLog, err := loadConfig(cmd, flags, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	if useTUI {
		title := fmt.Sprintf("chat-widget  %s", a.client.Endpoint())
		p := tea.NewProgram(
			handler.NewModel(ctx, a.widget, title),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
			tea.WithContext(ctx),
		)
		if _, err = p.Run(); errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
	} else {
		err = handler.RunLines(ctx, a.widget, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	if terr := a.WriteTranscript(); terr != nil {
		log.Error().Err(terr).Str("path", cfg.Transcript).Msg("failed to write transcript")
		if err == nil {
			err = terr
		}
	}
	return err
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <text...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, closeLog, err := loadConfig(cmd, flags, false)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			printer := handler.NewPrinter(cmd.OutOrStdout())
			a.widget.ChatBox().SetObserver(printer.Observe)

			res, ok := a.widget.SendText(ctx, strings.Join(args, " "))
			if !ok {
				return errors.New("nothing to send: message is empty")
			}
			if terr := a.WriteTranscript(); terr != nil {
				return terr
			}
			if err := printer.Err(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			var uerr *usecase.Error
			if errors.As(res.Err, &uerr) && uerr.Code != usecase.ErrorInternal {
				return res.Err
			}
			return nil
		},
	}
}

func newSessionCmd(flags *rootFlags) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the persisted session id",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, flags, func(ctx context.Context, cfg *config.Config, store session.Store) error {
				out := cmd.OutOrStdout()
				if cfg.Mode() == session.ModeServerIssued {
					fmt.Fprintln(out, "server-issued sessions are not persisted")
					return nil
				}
				id, ok, err := session.Stored(ctx, store)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "no session id stored for profile %q\n", cfg.Profile)
					return nil
				}
				fmt.Fprintln(out, id)
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the persisted session id; the next run starts a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, flags, func(ctx context.Context, cfg *config.Config, store session.Store) error {
				if err := session.Reset(ctx, store); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session id cleared for profile %q\n", cfg.Profile)
				return nil
			})
		},
	}

	sessionCmd.AddCommand(show, reset)
	return sessionCmd
}

func withStore(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *config.Config, session.Store) error) error {
	ctx := cmd.Context()
	cfg, closeLog, err := loadConfig(cmd, flags, false)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openStore(ctx, cfg, newAWSLoader())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, cfg, store)
}
