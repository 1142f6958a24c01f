package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/ollama"
)

// ChatOptions holds options for the chat command
type ChatOptions struct {
	*GlobalOptions

	// Model is the served model to chat with
	Model string

	// System is the initial system prompt
	System string
}

// NewChatCommand creates the chat command.
//
// The chat command starts an interactive chat session against the Ollama
// server in the running container.
//
// Usage:
//
//	ovhelper chat [MODEL] [--system PROMPT]
//
// Examples:
//
//	# Chat with the most recently imported model
//	ovhelper chat
//
//	# Chat with a specific model
//	ovhelper chat qwen2.5-7b-instruct
//
//	# Start with a system prompt
//	ovhelper chat qwen2.5-7b-instruct --system "Answer in German."
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for interactive chat
func NewChatCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ChatOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "chat [MODEL]",
		Short: "Chat with a model served by the running server",
		Long: `Start an interactive chat session with a served model.

MODEL defaults to the most recently imported model. Replies stream token by
token; Ctrl+C cancels the reply being generated without ending the session.
Type '/h' inside the session for the available commands.`,
		Example: `  ovhelper chat
  ovhelper chat qwen2.5-7b-instruct --system "Answer in German."`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Model = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), opts, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.System, "system", "",
		"system prompt for the session")

	return cmd
}

// runChat executes the chat command logic.
func runChat(ctx context.Context, opts *ChatOptions, cfg *config.Config) error {
	client := getOllamaClient(cfg)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ready(probeCtx); err != nil {
		return err
	}

	model, err := resolveChatModel(probeCtx, client, opts.Model)
	if err != nil {
		return err
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Chat session started with: %s\n", model)
	fmt.Println("Type your message and press Enter. Use '/h' for help, '/quit' to exit.")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	return startInteractiveChat(client, model, opts.System)
}

// resolveChatModel picks the model to chat with. An explicit name must be
// served; with no name, the most recently modified served model wins, which
// is the one imported last.
func resolveChatModel(ctx context.Context, client *ollama.Client, requested string) (string, error) {
	served, err := client.Tags(ctx)
	if err != nil {
		return "", err
	}
	if len(served) == 0 {
		return "", fmt.Errorf("the server serves no models. Import one with: %s import MODEL", cliName)
	}

	if requested != "" {
		for _, m := range served {
			if m.Name == requested || strings.TrimSuffix(m.Name, ":latest") == requested {
				return m.Name, nil
			}
		}
		names := make([]string, 0, len(served))
		for _, m := range served {
			names = append(names, m.Name)
		}
		return "", fmt.Errorf("model %q is not served. Available: %s", requested, strings.Join(names, ", "))
	}

	newest := served[0]
	for _, m := range served[1:] {
		if m.ModifiedAt.After(newest.ModifiedAt) {
			newest = m
		}
	}
	return newest.Name, nil
}

// chatSession holds the state of a chat session
type chatSession struct {
	model        string
	client       *ollama.Client
	messages     []ollama.ChatMessage
	systemPrompt string
	temperature  float64
	topP         float64
	maxTokens    int
	readline     *readline.Instance
	output       io.Writer          // Store output writer for streaming
	cancelFunc   context.CancelFunc // To cancel ongoing requests
}

// startInteractiveChat starts an interactive chat session with the model
func startInteractiveChat(client *ollama.Client, model, systemPrompt string) error {
	// Create readline instance with history support
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     "", // No persistent history file
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	session := &chatSession{
		model:        model,
		client:       client,
		messages:     []ollama.ChatMessage{},
		systemPrompt: systemPrompt,
		temperature:  0.7,
		topP:         0.9,
		maxTokens:    2048,
		readline:     rl,
		output:       rl.Stdout(),
	}

	for {
		// Read line with history support (up/down arrow keys)
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C pressed - cancel any ongoing operation
				if session.cancelFunc != nil {
					session.cancelFunc()
					session.cancelFunc = nil
					fmt.Fprintln(session.output, "\nOperation cancelled.")
				}
				continue // Continue the conversation, don't exit
			}
			// io.EOF or other errors - exit
			break
		}

		userInput := strings.TrimSpace(line)

		if userInput == "" {
			continue
		}

		// Check if it's a command (starts with /)
		if strings.HasPrefix(userInput, "/") {
			if shouldExit := session.handleCommand(userInput); shouldExit {
				break
			}
			continue
		}

		// Regular message - add to history
		session.messages = append(session.messages, ollama.ChatMessage{
			Role:    ollama.RoleUser,
			Content: userInput,
		})

		// Create a cancellable context for this request
		ctx, cancel := context.WithCancel(context.Background())
		session.cancelFunc = cancel

		// Set up signal handler for Ctrl+C during request/streaming
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		// Clean the line and print Assistant prompt
		session.readline.Operation.Clean()
		fmt.Fprint(session.output, "\nAssistant: ")

		response, err := session.sendChatRequest(ctx)

		// Stop signal handler and clear the cancel function
		signal.Stop(sigChan)
		close(sigChan)
		session.cancelFunc = nil

		if err != nil {
			if ctx.Err() != context.Canceled {
				// Only show error if it's not a cancellation
				fmt.Fprintf(session.output, "\nError: %v\n", err)
			} else {
				// Just print a newline for cancelled operations
				fmt.Fprint(session.output, "\n")
			}
			// Remove the failed user message from history
			session.messages = session.messages[:len(session.messages)-1]
			// Refresh readline state
			session.readline.Refresh()
			continue
		}

		fmt.Fprint(session.output, "\n") // New line after streaming response

		// Force refresh readline to restore proper state after streaming
		session.readline.Refresh()

		// Add assistant response to history
		session.messages = append(session.messages, ollama.ChatMessage{
			Role:    ollama.RoleAssistant,
			Content: response,
		})
	}

	return nil
}

// sendChatRequest streams one completion for the current history, printing
// tokens as they arrive.
func (s *chatSession) sendChatRequest(ctx context.Context) (string, error) {
	// Build messages with system prompt if set
	messages := s.messages
	if s.systemPrompt != "" {
		messages = append([]ollama.ChatMessage{
			{Role: ollama.RoleSystem, Content: s.systemPrompt},
		}, messages...)
	}

	temperature := s.temperature
	topP := s.topP
	req := ollama.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   s.maxTokens,
	}

	return s.client.ChatStream(ctx, req, func(delta string) {
		fmt.Fprint(s.output, delta)
	})
}

// handleCommand processes slash commands
// Returns true if the session should exit
func (s *chatSession) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	command := parts[0]

	switch command {
	case "/quit":
		fmt.Println("Goodbye!")
		return true

	case "/h", "/?":
		s.showHelp()

	case "/clear":
		s.messages = []ollama.ChatMessage{}
		fmt.Println("Context cleared.")

	case "/history":
		s.showHistory()

	case "/set":
		s.handleSetCommand(parts[1:])

	case "/show":
		s.showConfig()

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Type /h to see available commands.")
	}

	return false
}

// handleSetCommand handles /set commands
func (s *chatSession) handleSetCommand(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: /set <parameter> <value>")
		fmt.Println("Available parameters: system-prompt, temperature, top-p, max-tokens")
		return
	}

	param := args[0]
	value := strings.Join(args[1:], " ")

	switch param {
	case "system-prompt", "system":
		s.systemPrompt = value
		fmt.Printf("System prompt set to: %s\n", value)

	case "temperature", "temp":
		temp, err := parseFloat(value)
		if err != nil || temp < 0 || temp > 2 {
			fmt.Println("Invalid temperature. Must be between 0 and 2.")
			return
		}
		s.temperature = temp
		fmt.Printf("Temperature set to: %.2f\n", temp)

	case "top-p", "top_p":
		topP, err := parseFloat(value)
		if err != nil || topP < 0 || topP > 1 {
			fmt.Println("Invalid top-p. Must be between 0 and 1.")
			return
		}
		s.topP = topP
		fmt.Printf("Top-p set to: %.2f\n", topP)

	case "max-tokens", "max_tokens":
		maxTokens, err := parseInt(value)
		if err != nil || maxTokens < 1 {
			fmt.Println("Invalid max-tokens. Must be a positive integer.")
			return
		}
		s.maxTokens = maxTokens
		fmt.Printf("Max tokens set to: %d\n", maxTokens)

	default:
		fmt.Printf("Unknown parameter: %s\n", param)
		fmt.Println("Available: system-prompt, temperature, top-p, max-tokens")
	}
}

// showHelp displays available commands
func (s *chatSession) showHelp() {
	fmt.Println()
	fmt.Println("  /h, /?                  Show this help")
	fmt.Println("  /quit                   Exit the chat session")
	fmt.Println("  /clear                  Clear conversation history")
	fmt.Println("  /history                Show conversation history")
	fmt.Println("  /show                   Show current configuration")
	fmt.Println("  /set <param> <value>    Set a parameter:")
	fmt.Println("    system-prompt <text>    Set system prompt")
	fmt.Println("    temperature <0-2>       Set temperature (default: 0.7)")
	fmt.Println("    top-p <0-1>             Set top-p (default: 0.9)")
	fmt.Println("    max-tokens <number>     Set max tokens (default: 2048)")
	fmt.Println()
}

// showHistory displays the conversation history
func (s *chatSession) showHistory() {
	if len(s.messages) == 0 {
		fmt.Println("No messages in history.")
		return
	}

	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Println("Conversation History:")
	fmt.Println(strings.Repeat("-", 60))

	for i, msg := range s.messages {
		if msg.Role == ollama.RoleUser {
			fmt.Printf("\n[%d] You:\n%s\n", i+1, msg.Content)
		} else {
			fmt.Printf("\n[%d] Assistant:\n%s\n", i+1, msg.Content)
		}
	}
	fmt.Println(strings.Repeat("-", 60))
}

// showConfig displays current configuration
func (s *chatSession) showConfig() {
	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Println("Current Configuration:")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Model:          %s\n", s.model)
	fmt.Printf("Endpoint:       %s\n", s.client.BaseURL())
	if s.systemPrompt != "" {
		fmt.Printf("System Prompt:  %s\n", s.systemPrompt)
	} else {
		fmt.Printf("System Prompt:  (using model default)\n")
	}
	fmt.Printf("Temperature:    %.2f\n", s.temperature)
	fmt.Printf("Top-p:          %.2f\n", s.topP)
	fmt.Printf("Max Tokens:     %d\n", s.maxTokens)
	fmt.Printf("Messages:       %d\n", len(s.messages))
	fmt.Println(strings.Repeat("-", 60))
}

// parseFloat parses a string to float64
func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}

// parseInt parses a string to int
func parseInt(s string) (int, error) {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	return i, err
}
