package serv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/go-resty/resty/v2"
	"github.com/querygate/querygate/core"
)

const assistTimeout = 30 * time.Second

// assistInstructions is the fixed part of the system prompt. The
// schema document gets appended so the model only uses declared
// tables, columns and relations.
const assistInstructions = `You translate natural language questions into query requests for a schema-governed, multi-database query engine.

A request is a JSON object keyed by table name. Each table entry is an object that may hold:
- "select": list of column names to return (defaults to all columns)
- "relations": object keyed by a relation name declared for the table, each holding a nested entry of this same shape
- "orderBy": a column name, a list of column names, or an object of column to "asc" or "desc"
- "groupBy": a column name or list of column names
- "limit" and "offset": numbers
Every other key is a filter on the column of that name. A plain value means equality, null means the column is null, and an object with exactly one entry applies an operator: gt, gte, lt, lte, neq, like, ilike, in, notIn, between, isNull, isNotNull.

Reply with exactly one JSON object and nothing else. Use only tables, columns and relations declared in the schema below.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type assistResult struct {
	Request core.QueryRequest `json:"request"`
	Valid   bool              `json:"valid"`
	Error   string            `json:"error,omitempty"`
}

// assistHandler translates a natural language prompt into a governed
// query request and validates it against the active schema. It never
// executes the request; callers review it and submit it to the query
// endpoint themselves.
// POST /api/v1/assist
func assistHandler(s1 *HttpService) http.Handler {
	s := s1.Load().(*querygateService)

	client := resty.New().
		SetBaseURL(s.conf.Assist.BaseURL).
		SetTimeout(assistTimeout)

	if s.conf.Assist.APIKey != "" {
		client.SetAuthToken(s.conf.Assist.APIKey)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		body, err := readBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var in struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if strings.TrimSpace(in.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt required")
			return
		}

		prompt, err := assistSystemPrompt(s)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		var out chatResponse
		resp, err := client.R().
			SetContext(r.Context()).
			SetHeader(headers.ContentType, jsonContentType).
			SetBody(chatRequest{
				Model: s.conf.Assist.Model,
				Messages: []chatMessage{
					{Role: "system", Content: prompt},
					{Role: "user", Content: in.Prompt},
				},
			}).
			SetResult(&out).
			Post("/chat/completions")
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "assist api: "+err.Error())
			return
		}
		if resp.IsError() {
			writeJSONError(w, http.StatusBadGateway,
				fmt.Sprintf("assist api: status %d", resp.StatusCode()))
			return
		}
		if len(out.Choices) == 0 {
			writeJSONError(w, http.StatusBadGateway, "assist api: empty response")
			return
		}

		reply := out.Choices[0].Message.Content

		raw, ok := firstJSONObject(reply)
		if !ok {
			writeJSONError(w, http.StatusUnprocessableEntity,
				"assist reply contains no request object")
			return
		}

		var req core.QueryRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity,
				"assist reply is not a valid request: "+err.Error())
			return
		}

		res := assistResult{Request: req, Valid: true}
		if err := s.gate.Validate(r.Context(), req); err != nil {
			res.Valid = false
			res.Error = err.Error()
		}

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, res)
	})
}

// assistSystemPrompt builds the system prompt from the masked schema
// document and any extra configured instructions.
func assistSystemPrompt(s *querygateService) (string, error) {
	schema, err := s.gate.Schema()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(assistInstructions)
	if p := s.conf.Assist.Prompt; p != "" {
		b.WriteString("\n\n")
		b.WriteString(p)
	}
	b.WriteString("\n\n")
	b.Write(schema)
	return b.String(), nil
}

// firstJSONObject returns the first balanced JSON object in s. Models
// wrap replies in prose or code fences; the request is the first
// object either way.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inStr := false
	esc := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
