//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/api/handlers"
	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/openai"
	"github.com/cloo-solutions/counsel/internal/ratelimit"
	"github.com/cloo-solutions/counsel/internal/repository"
	"github.com/cloo-solutions/counsel/internal/server"
	"github.com/cloo-solutions/counsel/internal/service"
	"github.com/cloo-solutions/counsel/internal/storage"
	"github.com/cloo-solutions/counsel/internal/testutil"
)

const (
	testBucket   = "e2e-documents"
	testUserID   = "anna"
	chatModel    = "gpt-4o"
	embeddingDim = 1536
)

// E2ETestEnv is one isolated stack: Postgres, RustFS, the fake model and an
// in-process counseld router. Everything is released through t.Cleanup.
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Pool       *pgxpool.Pool
	S3Client   *storage.S3Client
	LLM        *FakeLLM
	ServerURL  string
	BinaryDir  string
	OrgID      string
	APIToken   string
	HTTPClient *http.Client
}

func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })
	s3C := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { _ = s3C.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")
	t.Cleanup(pool.Close)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSKey,
		SecretAccessKey: testutil.RustFSSecret,
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, s3Client.EnsureBucket(ctx))

	llm := NewFakeLLM(t)
	srv := httptest.NewServer(newRouter(pool, s3Client, llm.URL()))
	t.Cleanup(srv.Close)

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		Pool:       pool,
		S3Client:   s3Client,
		LLM:        llm,
		ServerURL:  srv.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Bootstrap creates an organization with one API key the way counseld does on
// first start.
func (e *E2ETestEnv) Bootstrap() {
	authSvc := service.NewAuthService(repository.NewOrgRepository(e.Pool), repository.NewAPIKeyRepository(e.Pool), &service.DefaultUUIDGenerator{})

	org, err := authSvc.CreateOrg(e.Ctx, "Kanzlei E2E")
	require.NoError(e.T, err)
	e.OrgID = org.ID

	e.APIToken = "cns_" + strings.Repeat("ab", 32)
	require.NoError(e.T, authSvc.CreateAPIKeyWithToken(e.Ctx, org.ID, testUserID, "e2e", e.APIToken))
}

// SeedSource stores an active, processed source with a single embedded chunk.
func (e *E2ETestEnv) SeedSource(name, content string) *domain.KnowledgeSource {
	repo := repository.NewKnowledgeSourceRepository(e.Pool)
	now := time.Now().UTC()
	s := &domain.KnowledgeSource{
		ID: uuid.NewString(), Name: name, Category: "commentary",
		Active: true, Processed: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(e.T, repo.Create(e.Ctx, s))
	chunk := &domain.SourceChunk{ID: uuid.NewString(), SourceID: s.ID, Heading: "§ 536 BGB", Content: content}
	require.NoError(e.T, repo.AddChunk(e.Ctx, chunk, fakeEmbedding()))
	return s
}

// SeedDocument uploads data to the bucket and records it as an attachment.
func (e *E2ETestEnv) SeedDocument(filename, mimeType string, data []byte) *domain.Document {
	id := uuid.NewString()
	key := fmt.Sprintf("documents/%s/%s", e.OrgID, id)
	require.NoError(e.T, e.S3Client.PutObject(e.Ctx, key, mimeType, data))
	doc := &domain.Document{
		ID: id, OrgID: e.OrgID, Filename: filename, MimeType: mimeType,
		SizeBytes: int64(len(data)), StorageKey: key, CreatedAt: time.Now().UTC(),
	}
	require.NoError(e.T, repository.NewDocumentRepository(e.Pool).Create(e.Ctx, doc))
	return doc
}

// BuildBinaries compiles cmd/counsel into a per-test directory.
func (e *E2ETestEnv) BuildBinaries() {
	e.BinaryDir = e.T.TempDir()
	cmd := exec.Command("go", "build", "-o", filepath.Join(e.BinaryDir, "counsel"), "./cmd/counsel")
	cmd.Dir = "../.."
	out, err := cmd.CombinedOutput()
	require.NoError(e.T, err, "go build counsel:\n%s", out)
}

// RunCounsel runs the counsel CLI with credentials taken from the environment.
// stdout and stderr are returned separately.
func (e *E2ETestEnv) RunCounsel(stdin string, args ...string) (string, string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "counsel"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"COUNSEL_API_KEY="+e.APIToken,
		"COUNSEL_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+filepath.Join(e.BinaryDir, "config"),
		"HOME="+e.BinaryDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	req, err := http.NewRequest(http.MethodGet, e.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return apiResp, nil
}

// newRouter wires the chat stack like counseld serve, against the fake model.
func newRouter(pool *pgxpool.Pool, s3Client *storage.S3Client, llmURL string) http.Handler {
	logger := logging.NewDiscardLogger()

	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	openaiCfg := openai.Config{APIKey: "sk-e2e", BaseURL: llmURL, EmbeddingModel: goopenai.SmallEmbedding3}
	chatClient := openai.NewChatClient(openaiCfg)
	embedder := openai.NewEmbedder(openaiCfg)

	conversations := service.NewConversationService(
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		projectRepo,
		repository.NewTxRunner(pool),
	)
	driver := service.NewDriver(chatClient, service.DriverConfig{MaxRetries: 1}, logger)
	chatSvc := service.NewChatService(service.ChatDeps{
		Conversations: conversations,
		Limiter:       ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), 100, time.Minute, logger),
		Expander:      service.NewExpander(chatClient, "gpt-4o-mini", logger),
		Router:        service.NewRouter(repository.NewKnowledgeSourceRepository(pool), embedder, logger),
		Templates:     repository.NewTemplateRepository(pool),
		Documents:     repository.NewDocumentRepository(pool),
		Objects:       s3Client,
		Coordinator:   service.NewCoordinator(driver, nil, 3, logger),
		Verifier:      service.NewVerifier(nil, logger),
	}, service.ChatConfig{
		Model:        chatModel,
		SystemPrompt: service.DefaultSystemPrompt,
	}, logger)

	return server.NewRouter(server.RouterConfig{
		AuthValidator:       authSvc,
		ChatHandler:         handlers.NewChatHandler(chatSvc, logger),
		ConversationHandler: handlers.NewConversationHandler(conversations),
		ProjectHandler:      handlers.NewProjectHandler(projectRepo),
		MeHandler:           handlers.NewMeHandler(),
		Logger:              logger,
	})
}


func fakeEmbedding() []float32 {
	v := make([]float32, embeddingDim)
	v[0] = 1
	return v
}

// FakeLLM serves the OpenAI endpoints the server calls. Streaming completions
// answer with a fixed text; plain completions return query expansions.
type FakeLLM struct {
	server *httptest.Server

	mu      sync.Mutex
	answer  string
	streams [][]byte
}

func NewFakeLLM(t *testing.T) *FakeLLM {
	f := &FakeLLM{answer: "Nach § 536 BGB ist die Miete kraft Gesetzes gemindert."}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", f.chat)
	mux.HandleFunc("/embeddings", f.embeddings)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeLLM) URL() string {
	return f.server.URL
}

// StreamRequests returns the raw bodies of every streaming completion so far.
func (f *FakeLLM) StreamRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.streams))
	for i, b := range f.streams {
		out[i] = string(b)
	}
	return out
}

func (f *FakeLLM) chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req goopenai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(goopenai.ChatCompletionResponse{
			ID:    "cmpl-expand",
			Model: req.Model,
			Choices: []goopenai.ChatCompletionChoice{{
				Message:      goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: `["Minderung der Miete bei Mängeln"]`},
				FinishReason: goopenai.FinishReasonStop,
			}},
		})
		return
	}

	f.mu.Lock()
	f.streams = append(f.streams, body)
	answer := f.answer
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	half := len(answer) / 2
	for half < len(answer) && answer[half]&0xC0 == 0x80 {
		half++
	}
	chunks := []string{
		fmt.Sprintf(`{"id":"1","model":%q,"choices":[{"index":0,"delta":{"role":"assistant","content":%q}}]}`, req.Model, answer[:half]),
		fmt.Sprintf(`{"id":"1","model":%q,"choices":[{"index":0,"delta":{"content":%q},"finish_reason":"stop"}]}`, req.Model, answer[half:]),
		fmt.Sprintf(`{"id":"1","model":%q,"choices":[],"usage":{"prompt_tokens":400,"completion_tokens":20,"total_tokens":420}}`, req.Model),
	}
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func (f *FakeLLM) embeddings(w http.ResponseWriter, r *http.Request) {
	var req goopenai.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(goopenai.EmbeddingResponse{
		Object: "list",
		Model:  req.Model,
		Data:   []goopenai.Embedding{{Object: "embedding", Index: 0, Embedding: fakeEmbedding()}},
	})
}
