// Lida terminal client: a streaming conversation with the assistant backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lidahealth/lida/internal/assistant"
	"github.com/lidahealth/lida/internal/auth"
	"github.com/lidahealth/lida/internal/config"
	"github.com/lidahealth/lida/internal/gate"
	"github.com/lidahealth/lida/internal/session"
	"github.com/lidahealth/lida/internal/store"
	"github.com/lidahealth/lida/internal/transcript"
)

// quickQuestions seed a fresh conversation, mirroring the picker the web
// client shows before the first message.
var quickQuestions = []string{
	"Hi Lida, can you help me plan my meals for the week?",
	"I'm feeling stressed about my blood sugar. What can I do?",
	"What exercises are safe for me with diabetes?",
	"I'm planning to travel soon. How can I manage my diabetes on the trip?",
}

func main() {
	// Chat goes to stdout; logs stay on stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer repo.Close()

	tr := transcript.New()
	tr.SetOnChange(newRenderer(os.Stdout))

	policy := auth.Policy{
		IdentifierDigits: cfg.Gate.IdentifierDigits,
		SecretMinLength:  cfg.Gate.SecretMinLength,
	}
	authClient := auth.NewClient(cfg.BackendURL)
	backend := assistant.NewClient(cfg.BackendURL)

	sess, err := session.New(ctx, session.Config{
		SessionID:   cfg.SessionID,
		Transcript:  tr,
		Gate:        gate.New(tr, authClient, policy, cfg.Gate.Threshold),
		Client:      backend,
		Credentials: repo,
		Notify: func(message string) {
			fmt.Printf("\n[notice] %s\n", message)
		},
	})
	if err != nil {
		return err
	}

	fmt.Println("Start a new chat with the assistant, or pick a question:")
	for i, q := range quickQuestions {
		fmt.Printf("  %d. %s\n", i+1, q)
	}
	fmt.Println("Commands: /login <identifier> <secret>, /transcript, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := command(ctx, sess, authClient, tr, input); quit {
				break
			}
			continue
		}

		// Bare numbers pick a quick question before the first exchange.
		if n, err := strconv.Atoi(input); err == nil && tr.Len() == 0 && n >= 1 && n <= len(quickQuestions) {
			input = quickQuestions[n-1]
		}

		if err := sess.Submit(ctx, input); err != nil {
			switch {
			case errors.Is(err, session.ErrBusy):
				fmt.Println("Hold on, the assistant is still replying.")
			case errors.Is(err, auth.ErrIdentifierFormat),
				errors.Is(err, auth.ErrIdentifierLength),
				errors.Is(err, auth.ErrSecretTooShort):
				fmt.Println("!", err)
			default:
				fmt.Println("\n[notice] Something went wrong:", err)
			}
			continue
		}
		fmt.Println()
	}

	return scanner.Err()
}

// command handles slash commands; returns true to quit.
func command(ctx context.Context, sess *session.Session, authClient *auth.Client, tr *transcript.Transcript, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/transcript":
		printTranscript(tr)
	case "/login":
		if len(fields) != 3 {
			fmt.Println("usage: /login <identifier> <secret>")
			return false
		}
		token, err := authClient.Login(ctx, fields[1], fields[2])
		if err != nil {
			var apiErr *auth.APIError
			if errors.As(err, &apiErr) {
				fmt.Println("!", apiErr.Message)
			} else {
				slog.Error("login failed", "error", err)
				fmt.Println("! login failed, please try again")
			}
			return false
		}
		sess.Authenticate(ctx, token)
		fmt.Println("Logged in.")
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

// newRenderer streams transcript mutations to the terminal as they happen.
func newRenderer(w *os.File) func(transcript.Change) {
	return func(c transcript.Change) {
		switch c.Kind {
		case transcript.ChangeAppend:
			switch c.Message.Role {
			case transcript.RoleAssistant:
				fmt.Fprint(w, "\nassistant: ", c.Message.Text)
			case transcript.RoleCode:
				fmt.Fprint(w, "\n```\n", c.Message.Text)
			case transcript.RoleSystem:
				fmt.Fprintf(w, "\nlida: %s\n", c.Message.Text)
			case transcript.RoleUser:
				// Typed by the user; already on screen.
			}
		case transcript.ChangeGrow:
			if c.Message.Role == transcript.RoleAssistant || c.Message.Role == transcript.RoleCode {
				fmt.Fprint(w, c.Delta)
			}
		case transcript.ChangeRewrite:
			// In-place link rewrites can't be redrawn on a terminal; the
			// final text is visible via /transcript.
		}
	}
}

func printTranscript(tr *transcript.Transcript) {
	fmt.Println("\n--- transcript ---")
	for _, m := range tr.Messages() {
		text := m.Text
		if m.Sensitive {
			text = strings.Repeat("•", 8)
		}
		fmt.Printf("%s: %s\n", m.Role, text)
	}
	fmt.Println("------------------")
}
