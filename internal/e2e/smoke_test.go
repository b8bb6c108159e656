//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("JARVIS_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3210"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type chatReply struct {
	Response    string   `json:"response"`
	Category    string   `json:"category"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions"`
	SessionID   string   `json:"session_id"`
	ChainID     string   `json:"chain_id"`
}

var client = &http.Client{Timeout: 90 * time.Second}

func do(t *testing.T, method, path string, payload interface{}, v interface{}) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(raw, v); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
		}
	}
	return resp.StatusCode
}

// chat sends one message in the given session.
func chat(t *testing.T, session, message string) chatReply {
	t.Helper()
	var reply chatReply
	status := do(t, http.MethodPost, "/api/chatbot/chat",
		map[string]string{"message": message, "session_id": session}, &reply)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	return reply
}

func TestGreeting(t *testing.T) {
	reply := chat(t, "smoke-greeting", "hello there")
	if reply.Response == "" {
		t.Error("expected non-empty response")
	}
	if reply.ChainID == "" {
		t.Error("expected a chain id")
	}
	t.Logf("reply: %.200s", reply.Response)
}

func TestTopicMessage(t *testing.T) {
	reply := chat(t, "smoke-topic", "Tell me about your docker deployment")
	if reply.Category != "cloud_devops" {
		t.Errorf("category = %q, want cloud_devops", reply.Category)
	}
	if len(reply.Suggestions) == 0 {
		t.Error("expected follow-up suggestions")
	}
	t.Logf("reply: %.200s", reply.Response)
}

func TestSessionLifecycle(t *testing.T) {
	const session = "smoke-lifecycle"
	chat(t, session, "What projects have you built?")

	var got struct {
		Status struct {
			ConversationCount int `json:"conversation_count"`
		} `json:"status"`
	}
	if status := do(t, http.MethodGet, "/api/chatbot/sessions/"+session, nil, &got); status != http.StatusOK {
		t.Fatalf("get session status %d", status)
	}
	if got.Status.ConversationCount < 1 {
		t.Errorf("conversation_count = %d, want >= 1", got.Status.ConversationCount)
	}

	var cleared struct {
		Cleared bool `json:"cleared"`
	}
	do(t, http.MethodDelete, "/api/chatbot/sessions/"+session, nil, &cleared)
	if !cleared.Cleared {
		t.Error("expected session to be cleared")
	}
}

func TestTopics(t *testing.T) {
	var got struct {
		Topics []struct {
			Name string `json:"name"`
		} `json:"topics"`
	}
	if status := do(t, http.MethodGet, "/api/chatbot/topics", nil, &got); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if len(got.Topics) == 0 {
		t.Error("expected at least one topic")
	}
}
