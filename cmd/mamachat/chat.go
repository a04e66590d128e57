package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"mamachat/internal/config"
	"mamachat/internal/models"
	"mamachat/internal/service/ai"
	"mamachat/internal/service/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive streaming chat",
	Long: `Start an interactive streaming chat. Type a message and press enter.

  /attach <path>   attach an image to the next message
  /quit            leave the chat`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var (
	chatProvider   string
	chatConfigPath string
)

func init() {
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "Provider name: gemini, openai or claude (default from config, else gemini)")
	chatCmd.Flags().StringVar(&chatConfigPath, "config", os.Getenv("MAMACHAT_CONFIG"), "Server config file to read provider settings from")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cf, err := loadContextFile(contextPath)
	if err != nil {
		return err
	}
	name, pcfg, opts, err := resolveProvider(chatConfigPath, chatProvider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	provider, err := ai.NewProvider(ctx, name, pcfg)
	if err != nil {
		return err
	}
	session, err := chat.NewEngine(provider, opts).Open(ctx, chat.OpenRequest{
		Prefs:   cf.Prefs,
		Profile: cf.Profile,
		Context: cf.Context,
	})
	if err != nil {
		return fmt.Errorf("open session: %s", chat.UserMessage(err))
	}
	out := cmd.OutOrStdout()
	for _, turn := range session.Transcript() {
		if turn.Role == models.RoleAssistant {
			fmt.Fprintf(out, "mamachat> %s\n\n", turn.Text())
		}
	}
	return chatLoop(ctx, session, cmd.InOrStdin(), out, opts.MaxAttachmentBytes)
}

// resolveProvider picks the provider entry from the config file when one is
// readable and falls back to environment variables otherwise.
func resolveProvider(configPath, name string) (string, config.ProviderConfig, chat.Options, error) {
	var opts chat.Options
	cfg, err := config.Load(configPath)
	if err != nil {
		if configPath != "" {
			return "", config.ProviderConfig{}, opts, err
		}
		if name == "" {
			name = "gemini"
		}
		return strings.ToLower(name), config.ProviderFromEnv(name), opts, nil
	}
	if name == "" {
		name = cfg.Chat.Provider
	}
	name = strings.ToLower(name)
	opts.BlockLimit = cfg.Chat.BlockLimit
	opts.MaxAttachmentBytes = cfg.Chat.MaxAttachmentBytes
	return name, cfg.Providers[name], opts, nil
}

func chatLoop(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer, maxBytes int64) error {
	scanner := bufio.NewScanner(in)
	var pending []models.Part
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/attach "):
			part, err := attachFile(strings.TrimSpace(strings.TrimPrefix(line, "/attach ")), maxBytes)
			if err != nil {
				fmt.Fprintf(out, "(could not attach: %v)\n", err)
				continue
			}
			pending = append(pending, part)
			fmt.Fprintf(out, "(attached %s for your next message)\n", part.Attachment.Name)
			continue
		}

		parts := append([]models.Part{models.TextPart(line)}, pending...)
		pending = nil
		fmt.Fprint(out, "mamachat> ")
		var streamErr error
		session.SendStream(ctx, parts, chat.StreamCallbacks{
			OnChunk: func(text string) error {
				_, err := io.WriteString(out, text)
				return err
			},
			OnError: func(err error) { streamErr = err },
		})
		fmt.Fprint(out, "\n\n")
		if streamErr != nil {
			fmt.Fprintf(out, "(%s)\n", chat.UserMessage(streamErr))
			if errors.Is(streamErr, chat.ErrInvalidSessionState) || session.State() != chat.StateActive {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func attachFile(path string, maxBytes int64) (models.Part, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Part{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()
	if maxBytes <= 0 {
		maxBytes = chat.DefaultMaxAttachmentBytes
	}
	att, err := chat.EncodeAttachmentLimit(path, "", f, maxBytes)
	if err != nil {
		return models.Part{}, err
	}
	return chat.AttachmentPart(att), nil
}
