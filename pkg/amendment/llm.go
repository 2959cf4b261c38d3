// Package amendment implements C9's LLM fallback client: a JSON-in/JSON-out
// structured-extraction call used only when the regex family in
// pkg/normattiva cannot parse an amendment destination row. Grounded on
// the teacher's core/pkg/llm.OpenAIClient.Chat (same request/response
// shape, same "Bearer " auth header, same bounded http.Client), narrowed
// from a general tool-calling chat client to this one fixed extraction
// schema.
package amendment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/capazme/lexcore/pkg/normattiva"
)

// Client implements normattiva.LLMFallback against an OpenAI-compatible
// chat completions endpoint.
type Client struct {
	apiKey  string
	apiBase string
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// New constructs a Client. apiBase is the chat-completions base URL
// (e.g. "https://api.openai.com/v1"); timeout bounds the whole call
// (spec §4.9: "60-second timeout").
func New(apiKey, apiBase, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		apiBase: apiBase,
		model:   model,
		timeout: timeout,
		log:     slog.Default().With("component", "amendment-llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// destinationEntry is the per-row JSON shape the model is asked to return:
// {articolo, comma, lettera, numero}.
type destinationEntry struct {
	Articolo string `json:"articolo"`
	Comma    string `json:"comma"`
	Lettera  string `json:"lettera"`
	Numero   string `json:"numero"`
}

const systemPrompt = `You extract amendment destinations from Italian legislative text rows.
For each input row, identify the target article number (articolo), comma number (comma),
paragraph letter (lettera), and any progressive number (numero). Respond with a JSON array,
one object per input row in the same order, each shaped {"articolo":"","comma":"","lettera":"","numero":""}.
If a row carries no identifiable destination, return an empty object for it — never omit a row.`

// ParseDestinations implements normattiva.LLMFallback. A failure at any
// stage (network, non-200, unparsable response, row-count mismatch)
// returns an error; per spec §4.9 the caller then treats every entry as
// unresolved ("failures return None for that entry, silently dropped"),
// so this client never partially resolves — it succeeds fully or not at
// all, and individual entries with no identifiable article come back as
// nil.
func (c *Client) ParseDestinations(ctx context.Context, rows []string) ([]*normattiva.Destination, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: marshalRows(rows)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("amendment llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("amendment llm: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: c.timeout}
	resp, err := client.Do(req)
	if err != nil {
		c.log.Warn("amendment llm call failed", "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amendment llm: upstream returned %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("amendment llm: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("amendment llm: empty choices in response")
	}

	var entries []destinationEntry
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &entries); err != nil {
		return nil, fmt.Errorf("amendment llm: unparsable extraction payload: %w", err)
	}
	if len(entries) != len(rows) {
		return nil, fmt.Errorf("amendment llm: expected %d entries, got %d", len(rows), len(entries))
	}

	out := make([]*normattiva.Destination, len(entries))
	for i, e := range entries {
		if e.Articolo == "" {
			out[i] = nil
			continue
		}
		out[i] = &normattiva.Destination{
			Articolo: e.Articolo,
			Comma:    e.Comma,
			Lettera:  e.Lettera,
			Numero:   e.Numero,
		}
	}
	return out, nil
}

func marshalRows(rows []string) string {
	b, _ := json.Marshal(rows)
	return string(b)
}
