package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, events ...string) (*httptest.Server, *askRequest) {
	t.Helper()
	var got askRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Conversation-ID", "conv-1")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetContext(context.Background())
	return cmd, &out, &errOut
}

func TestRunAsk_StreamsAnswer(t *testing.T) {
	srv, got := sseServer(t,
		`{"type":"start","conversation_id":"conv-1"}`,
		`{"type":"status","message":"Durchsuche Rechtsprechung..."}`,
		`{"type":"delta","text":"Die Frist "}`,
		`{"type":"delta","text":"beträgt zwei Wochen."}`,
		`{"type":"done","citations":[{"identifier":"BGH, VIII ZR 1/20","verified":true},{"identifier":"XI ZR 9/99","verified":false}],"sources":["Grüneberg"],"model":"gpt-4o","used_external_search":true}`,
	)

	cmd, out, errOut := testCommand()
	use := true
	req := askRequest{Message: "Wie lang ist die Frist?", ProjectID: "p1", UseKnowledge: &use}

	require.NoError(t, runAsk(cmd, NewAPIClientWithConfig(testKey, srv.URL), req, false, false))

	assert.Equal(t, "Wie lang ist die Frist?", got.Message)
	assert.Equal(t, "p1", got.ProjectID)
	require.NotNil(t, got.UseKnowledge)
	assert.True(t, *got.UseKnowledge)

	assert.Equal(t, "Die Frist beträgt zwei Wochen.\n", out.String())
	assert.Contains(t, errOut.String(), "Durchsuche Rechtsprechung")
	assert.Contains(t, errOut.String(), "Sources: Grüneberg")
	assert.Contains(t, errOut.String(), "? XI ZR 9/99")
	assert.Contains(t, errOut.String(), "Conversation: conv-1 (gpt-4o)")
}

func TestRunAsk_JSONOutput(t *testing.T) {
	srv, _ := sseServer(t,
		`{"type":"delta","text":"Ja."}`,
		`{"type":"done","citations":[],"sources":[],"model":"gpt-4o","used_external_search":false}`,
	)

	cmd, out, _ := testCommand()
	require.NoError(t, runAsk(cmd, NewAPIClientWithConfig(testKey, srv.URL), askRequest{Message: "Frage"}, true, false))

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "conv-1", result["conversation_id"])
	assert.Equal(t, "Ja.", result["answer"])
	assert.Equal(t, "gpt-4o", result["model"])
}

func TestRunAsk_ErrorEvent(t *testing.T) {
	srv, _ := sseServer(t,
		`{"type":"delta","text":"Teil"}`,
		`{"type":"error","message":"Der KI-Dienst ist derzeit überlastet."}`,
	)

	cmd, _, _ := testCommand()
	err := runAsk(cmd, NewAPIClientWithConfig(testKey, srv.URL), askRequest{Message: "Frage"}, false, false)
	assert.ErrorContains(t, err, "überlastet")
	assert.ErrorContains(t, err, "conv-1")
}

func TestRunAsk_RejectedBeforeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"message must not be empty","code":"VALIDATION_ERROR"}`))
	}))
	defer srv.Close()

	cmd, _, _ := testCommand()
	err := runAsk(cmd, NewAPIClientWithConfig(testKey, srv.URL), askRequest{Message: " "}, false, false)
	assert.ErrorContains(t, err, "message must not be empty")
}

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion([]string{"Was", "gilt?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Was gilt?", q)

	q, err = readQuestion([]string{"-"}, strings.NewReader("  Frage aus stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "Frage aus stdin", q)

	_, err = readQuestion([]string{"  "}, nil)
	assert.Error(t, err)
}
