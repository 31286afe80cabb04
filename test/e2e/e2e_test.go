//go:build e2e

package e2e

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mietChunk = "Ist die Mietsache mangelhaft, ist die Miete kraft Gesetzes gemindert. Schimmelbefall ist ein erheblicher Mangel."

type askOutput struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	MessageID      string `json:"message_id"`
	Citations      []struct {
		Identifier string `json:"identifier"`
		Verified   bool   `json:"verified"`
	} `json:"citations"`
	Sources  []string `json:"sources"`
	Model    string   `json:"model"`
	Warnings []string `json:"warnings"`
}

type conversationList struct {
	Items []struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
		Title   string `json:"title"`
	} `json:"items"`
	HasMore bool `json:"has_more"`
}

type conversationShow struct {
	ID       string `json:"id"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Model   string `json:"model"`
	} `json:"messages"`
}

func ask(t *testing.T, env *E2ETestEnv, args ...string) askOutput {
	t.Helper()
	stdout, stderr, err := env.RunCounsel("", append([]string{"ask", "--output"}, args...)...)
	require.NoError(t, err, "stderr: %s", stderr)

	var out askOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), "stdout: %s", stdout)
	return out
}

func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	env.Bootstrap()
	env.BuildBinaries()

	t.Run("health is public", func(t *testing.T) {
		resp, err := env.HTTPClient.Get(env.ServerURL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing and wrong keys are rejected", func(t *testing.T) {
		resp, err := env.Get("/me", "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, err = env.Get("/me", "cns_"+strings.Repeat("0", 64))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me resolves the key owner", func(t *testing.T) {
		resp, err := env.Get("/me", env.APIToken)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var me struct {
			OrgID  string `json:"org_id"`
			UserID string `json:"user_id"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &me))
		assert.Equal(t, env.OrgID, me.OrgID)
		assert.Equal(t, testUserID, me.UserID)
	})

	t.Run("cli status checks the key", func(t *testing.T) {
		stdout, stderr, err := env.RunCounsel("", "auth", "status", "--check")
		require.NoError(t, err, "stderr: %s", stderr)
		assert.Contains(t, stdout, "Source: env")
		assert.Contains(t, stdout, "User: "+testUserID)
		assert.NotContains(t, stdout, env.APIToken)
	})
}

func TestE2E_AskWithKnowledge(t *testing.T) {
	env := SetupE2EEnv(t)
	env.Bootstrap()
	env.BuildBinaries()
	env.SeedSource("Grüneberg BGB", mietChunk)

	first := ask(t, env, "--knowledge", "Ist die Miete wegen Schimmel gemindert?")
	require.NotEmpty(t, first.ConversationID)
	assert.NotEmpty(t, first.MessageID)
	assert.Equal(t, "Nach § 536 BGB ist die Miete kraft Gesetzes gemindert.", first.Answer)
	assert.Equal(t, chatModel, first.Model)
	assert.Contains(t, first.Sources, "Grüneberg BGB")

	requests := env.LLM.StreamRequests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0], "Schimmelbefall ist ein erheblicher Mangel")

	t.Run("follow-up carries history", func(t *testing.T) {
		stdout, stderr, err := env.RunCounsel("", "ask", "-c", first.ConversationID, "--knowledge=false", "Und bei Baulärm?")
		require.NoError(t, err, "stderr: %s", stderr)
		assert.Contains(t, stdout, "§ 536 BGB")
		assert.Contains(t, stderr, "Conversation: "+first.ConversationID+" ("+chatModel+")")

		requests := env.LLM.StreamRequests()
		require.Len(t, requests, 2)
		assert.Contains(t, requests[1], "Ist die Miete wegen Schimmel gemindert?")
		assert.Contains(t, requests[1], "Und bei Baulärm?")
	})

	t.Run("history is listed", func(t *testing.T) {
		stdout, stderr, err := env.RunCounsel("", "conversations", "list", "--output")
		require.NoError(t, err, "stderr: %s", stderr)

		var list conversationList
		require.NoError(t, json.Unmarshal([]byte(stdout), &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, first.ConversationID, list.Items[0].ID)
		assert.Equal(t, testUserID, list.Items[0].OwnerID)
		assert.False(t, list.HasMore)

		stdout, stderr, err = env.RunCounsel("", "conversations", "show", first.ConversationID, "--output")
		require.NoError(t, err, "stderr: %s", stderr)

		var show conversationShow
		require.NoError(t, json.Unmarshal([]byte(stdout), &show))
		require.Len(t, show.Messages, 4)
		assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, []string{
			show.Messages[0].Role, show.Messages[1].Role, show.Messages[2].Role, show.Messages[3].Role,
		})
		assert.Equal(t, "Und bei Baulärm?", show.Messages[2].Content)
		assert.Equal(t, chatModel, show.Messages[3].Model)
	})

	t.Run("unknown conversation fails", func(t *testing.T) {
		_, stderr, err := env.RunCounsel("", "ask", "-c", uuid.NewString(), "Hallo?")
		require.Error(t, err)
		assert.NotEmpty(t, stderr)
		assert.Len(t, env.LLM.StreamRequests(), 2)
	})
}

func TestE2E_AskWithImageDocument(t *testing.T) {
	env := SetupE2EEnv(t)
	env.Bootstrap()
	env.BuildBinaries()

	png := []byte("\x89PNG\r\n\x1a\nfake-image-bytes")
	doc := env.SeedDocument("schimmel.png", "image/png", png)

	out := ask(t, env, "--knowledge=false", "-d", doc.ID, "Was zeigt das Foto?")
	assert.NotEmpty(t, out.ConversationID)

	requests := env.LLM.StreamRequests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0], "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png))
}

func TestE2E_AskFromStdin(t *testing.T) {
	env := SetupE2EEnv(t)
	env.Bootstrap()
	env.BuildBinaries()

	stdout, stderr, err := env.RunCounsel("Darf der Vermieter die Kaution einbehalten?\n", "ask", "--output", "--knowledge=false", "-")
	require.NoError(t, err, "stderr: %s", stderr)

	var out askOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.NotEmpty(t, out.ConversationID)

	requests := env.LLM.StreamRequests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0], "Darf der Vermieter die Kaution einbehalten?")
}
