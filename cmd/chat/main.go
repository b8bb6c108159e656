package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	server  string
	session string
	http    *http.Client
}

func main() {
	c := &client{http: &http.Client{Timeout: 65 * time.Second}}

	root := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a running Jarvis server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.repl(cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.server, "server", "http://localhost:3210", "Jarvis server URL")
	root.PersistentFlags().StringVar(&c.session, "session", "cli", "session id")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printStatus(cmd.OutOrStdout())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "topics",
		Short: "List the knowledge base topics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printTopics(cmd.OutOrStdout())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the session transcript and memories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.clear(cmd.OutOrStdout())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *client) repl(in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Jarvis CLI Chat")
	fmt.Fprintf(out, "Server: %s | Session: %s\n", c.server, c.session)
	fmt.Fprintln(out, "Type 'exit' or 'quit' to leave.")
	fmt.Fprintln(out, "Commands: /status, /topics, /clear")
	fmt.Fprintln(out, "---")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		var err error
		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		case "/status":
			err = c.printStatus(out)
		case "/topics":
			err = c.printTopics(out)
		case "/clear":
			err = c.clear(out)
		default:
			err = c.send(out, input)
		}
		if err != nil {
			printError("%v", err)
		}
	}
}

func (c *client) send(out io.Writer, message string) error {
	body, _ := json.Marshal(map[string]string{
		"message":    message,
		"session_id": c.session,
	})
	var reply struct {
		Response    string   `json:"response"`
		Category    string   `json:"category"`
		Confidence  float64  `json:"confidence"`
		Suggestions []string `json:"suggestions"`
		Code        string   `json:"code"`
	}
	if err := c.do(http.MethodPost, "/api/chatbot/chat", bytes.NewReader(body), &reply); err != nil {
		return err
	}

	fmt.Fprintf(out, "\033[36m[%s %.2f]\033[0m %s\n", reply.Category, reply.Confidence, reply.Response)
	if reply.Code != "" {
		fmt.Fprintf(out, "\n%s\n", reply.Code)
	}
	for _, s := range reply.Suggestions {
		fmt.Fprintf(out, "  \033[90m• %s\033[0m\n", s)
	}
	return nil
}

func (c *client) printStatus(out io.Writer) error {
	var resp struct {
		Status struct {
			Name              string    `json:"name"`
			State             string    `json:"state"`
			MemoryCount       int       `json:"memory_count"`
			ConversationCount int       `json:"conversation_count"`
			ToolsAvailable    []string  `json:"tools_available"`
			LastActivity      time.Time `json:"last_activity"`
		} `json:"status"`
	}
	if err := c.do(http.MethodGet, "/api/chatbot/sessions/"+c.session+"?limit=1", nil, &resp); err != nil {
		return err
	}
	st := resp.Status
	fmt.Fprintf(out, "%s (%s)\n", st.Name, st.State)
	fmt.Fprintf(out, "  turns: %d | memories: %d\n", st.ConversationCount, st.MemoryCount)
	fmt.Fprintf(out, "  tools: %s\n", strings.Join(st.ToolsAvailable, ", "))
	if !st.LastActivity.IsZero() {
		fmt.Fprintf(out, "  last activity: %s\n", st.LastActivity.Format(time.RFC3339))
	}
	return nil
}

func (c *client) printTopics(out io.Writer) error {
	var resp struct {
		Topics []struct {
			Name     string   `json:"name"`
			Keywords []string `json:"keywords"`
		} `json:"topics"`
	}
	if err := c.do(http.MethodGet, "/api/chatbot/topics", nil, &resp); err != nil {
		return err
	}
	fmt.Fprintln(out, "Topics:")
	for _, t := range resp.Topics {
		fmt.Fprintf(out, "  %s (%d keywords)\n", t.Name, len(t.Keywords))
	}
	return nil
}

func (c *client) clear(out io.Writer) error {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(http.MethodDelete, "/api/chatbot/sessions/"+c.session, nil, &resp); err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Message)
	return nil
}

func (c *client) do(method, path string, body io.Reader, v interface{}) error {
	req, err := http.NewRequest(method, strings.TrimRight(c.server, "/")+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
