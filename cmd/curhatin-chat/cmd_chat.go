package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/curhatin/companion/internal/chat"
	"github.com/curhatin/companion/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lang := domain.LanguageIndonesian
		if language != "" {
			parsed, ok := parseLanguage(language)
			if !ok {
				return fmt.Errorf("unsupported language %q", language)
			}
			lang = parsed
		}

		conv := newConversation(lang)
		defer conv.Close()

		res, err := conv.Send(ctx, strings.Join(args, " "), printer(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		if res.Displayed == 0 {
			return errors.New("no reply from the agent")
		}
		return nil
	},
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	var lang domain.Language
	if language != "" {
		parsed, ok := parseLanguage(language)
		if !ok {
			return fmt.Errorf("unsupported language %q", language)
		}
		lang = parsed
	} else {
		selected, err := selectLanguage(in, out)
		if err != nil {
			return err
		}
		lang = selected
	}

	conv := newConversation(lang)
	defer conv.Close()

	return chatLoop(ctx, conv, in, out)
}

func newConversation(lang domain.Language) *chat.Conversation {
	var opts []chat.ClientOption
	if customerID != "" {
		opts = append(opts, chat.WithCustomerID(customerID))
	}
	backend := chat.NewHTTPClient(serverURL, opts...)
	return chat.NewConversation(backend, lang, chat.WithVerificationToken(token))
}

// selectLanguage shows the language prompt until the visitor picks one.
func selectLanguage(in *bufio.Scanner, out io.Writer) (domain.Language, error) {
	fmt.Fprintln(out, chat.LanguagePrompt)
	for i, opt := range chat.LanguageOptions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, opt)
	}
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		if lang, ok := parseLanguage(in.Text()); ok {
			return lang, nil
		}
		fmt.Fprintln(out, chat.InvalidSelection)
	}
}

// parseLanguage accepts a menu number, a language code or free text.
func parseLanguage(raw string) (domain.Language, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "1":
		return domain.Languages[0], true
	case "2":
		return domain.Languages[1], true
	}
	if lang, ok := domain.ParseLanguage(raw); ok {
		return lang, true
	}
	if raw == "" {
		return "", false
	}
	return chat.ParseLanguageSelection(raw)
}

// chatLoop greets the visitor and relays each input line as one turn.
func chatLoop(ctx context.Context, conv *chat.Conversation, in *bufio.Scanner, out io.Writer) error {
	greeting, err := conv.Start(ctx)
	fmt.Fprintln(out, agentLine(greeting))
	if err != nil {
		slog.Warn("session setup failed", "error", err)
	}

	sink := printer(out)
	for {
		fmt.Fprint(out, "you> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := in.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}

		res, err := conv.Send(ctx, line, sink)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Debug("turn failed", "error", err)
			continue
		}
		slog.Debug("turn finished", "displayed", res.Displayed, "completed", res.Completed, "attempts", res.Attempts)
	}
}

func printer(out io.Writer) chat.Sink {
	return func(text string) {
		fmt.Fprintln(out, agentLine(text))
	}
}

func agentLine(text string) string {
	return "curhatin> " + text
}
