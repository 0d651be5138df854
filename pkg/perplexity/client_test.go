package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
		want       string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"false"}}],"usage":{"prompt_tokens":30,"completion_tokens":1},"citations":["https://x.com/a/status/1"]}`,
			want:   "false",
		},
		{
			name:       "too_many_requests",
			status:     http.StatusTooManyRequests,
			body:       `{"error":"slow down"}`,
			wantErr:    "unexpected status 429",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error":"bad key"}`,
			wantErr:    "unexpected status 401",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "bad_json",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewClient("pk", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "q"}},
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				if tt.wantStatus != 0 {
					var se *StatusError
					require.True(t, errors.As(err, &se))
					assert.Equal(t, tt.wantStatus, se.HTTPStatus())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content())
			assert.Len(t, resp.Citations, 1)
		})
	}
}

func TestChatCompletion_DomainFilter(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("pk", WithBaseURL(srv.URL), WithModel("sonar")).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:           []Message{{Role: "user", Content: "q"}},
		SearchDomainFilter: SocialDomains,
	})
	require.NoError(t, err)
	assert.Equal(t, "sonar", got.Model)
	assert.Equal(t, []string{"x.com", "twitter.com"}, got.SearchDomainFilter)
}

func TestSocialSearch(t *testing.T) {
	req := SocialSearch("", "find 0xabc")
	assert.Empty(t, req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, SocialDomains, req.SearchDomainFilter)
	require.NotNil(t, req.WebSearchOptions)
	assert.Equal(t, "medium", req.WebSearchOptions.SearchContextSize)
}

func TestResponseSources(t *testing.T) {
	var nilResp *ChatCompletionResponse
	assert.Zero(t, nilResp.Sources())
	assert.Empty(t, nilResp.Content())

	resp := &ChatCompletionResponse{
		Citations: []string{"https://x.com/a/status/1", "https://x.com/a/status/2"},
		SearchResults: []SearchResult{
			{URL: "https://x.com/a/status/2"},
			{URL: "https://x.com/b/status/3"},
		},
	}
	assert.Equal(t, 3, resp.Sources())
}

func TestStatusError_NestedMessage(t *testing.T) {
	se := newStatusError(http.StatusBadRequest, []byte(`{"error":{"message":"invalid model","type":"invalid_request"}}`))
	assert.Equal(t, "invalid model", se.Message)
	assert.Equal(t, "perplexity: unexpected status 400: invalid model", se.Error())

	raw := newStatusError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	assert.Empty(t, raw.Message)
	assert.Contains(t, raw.Error(), "<html>bad gateway</html>")
}
