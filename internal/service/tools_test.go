package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloo-solutions/counsel/internal/caselaw"
	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCaseLawClient struct {
	mock.Mock
}

func (m *MockCaseLawClient) Search(ctx context.Context, query string, opts caselaw.SearchOptions) ([]caselaw.Case, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]caselaw.Case), args.Error(1)
}

func (m *MockCaseLawClient) Fetch(ctx context.Context, fileNumber string) (*caselaw.Case, error) {
	args := m.Called(ctx, fileNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*caselaw.Case), args.Error(1)
}

func call(name string, input any) domain.ToolCall {
	raw, _ := json.Marshal(input)
	return domain.ToolCall{ID: "call", Name: name, Input: raw}
}

func TestCaseLawTools_Definitions(t *testing.T) {
	defs := NewCaseLawTools(new(MockCaseLawClient)).Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, ToolSearchCaseLaw, defs[0].Name)
	assert.Equal(t, []string{"query"}, defs[0].Parameters["required"])
	assert.Equal(t, ToolGetCase, defs[1].Name)

	assert.Nil(t, NewCaseLawTools(nil).Definitions())
}

func TestCaseLawTools_Search(t *testing.T) {
	client := new(MockCaseLawClient)
	client.On("Search", mock.Anything, "Eigenbedarf", caselaw.SearchOptions{Court: "BGH", Limit: 3}).Return([]caselaw.Case{
		{FileNumber: "VIII ZR 180/18", Court: "BGH", Date: "2019-05-22", Text: "Leitsatz"},
	}, nil)

	out, err := NewCaseLawTools(client).Execute(context.Background(), call(ToolSearchCaseLaw, map[string]any{"query": "Eigenbedarf", "court": "BGH", "limit": 3}))
	require.NoError(t, err)
	assert.Contains(t, out, "BGH, 2019-05-22, Az. VIII ZR 180/18")
	assert.Contains(t, out, "Leitsatz")
}

func TestCaseLawTools_SearchNoResults(t *testing.T) {
	client := new(MockCaseLawClient)
	client.On("Search", mock.Anything, "xyz", caselaw.SearchOptions{}).Return([]caselaw.Case{}, nil)

	out, err := NewCaseLawTools(client).Execute(context.Background(), call(ToolSearchCaseLaw, map[string]any{"query": "xyz"}))
	require.NoError(t, err)
	assert.Contains(t, out, "Keine Entscheidungen")
}

func TestCaseLawTools_SearchDoesNotEchoQuery(t *testing.T) {
	client := new(MockCaseLawClient)
	client.On("Search", mock.Anything, "IX ZR 999/99", caselaw.SearchOptions{}).Return([]caselaw.Case{}, nil)
	client.On("Search", mock.Anything, "VI ZR 5/21", caselaw.SearchOptions{}).Return([]caselaw.Case{
		{FileNumber: "VI ZR 7/21", Court: "BGH", Date: "2021-06-01"},
	}, nil)
	tools := NewCaseLawTools(client)

	for _, query := range []string{"IX ZR 999/99", "VI ZR 5/21"} {
		out, err := tools.Execute(context.Background(), call(ToolSearchCaseLaw, map[string]any{"query": query}))
		require.NoError(t, err)
		assert.NotContains(t, ExtractIdentifiers(out), query)
	}
}

func TestCaseLawTools_GetCase(t *testing.T) {
	client := new(MockCaseLawClient)
	client.On("Fetch", mock.Anything, "VIII ZR 180/18").Return(&caselaw.Case{FileNumber: "VIII ZR 180/18", Court: "BGH", Date: "2019-05-22", Text: "Volltext"}, nil)
	client.On("Fetch", mock.Anything, "IX ZR 1/99").Return(nil, caselaw.ErrCaseNotFound)
	client.On("Fetch", mock.Anything, "1 StR 1/20").Return(nil, errors.New("503"))

	tools := NewCaseLawTools(client)
	out, err := tools.Execute(context.Background(), call(ToolGetCase, map[string]any{"file_number": "VIII ZR 180/18"}))
	require.NoError(t, err)
	assert.Contains(t, out, "Volltext")

	out, err = tools.Execute(context.Background(), call(ToolGetCase, map[string]any{"file_number": "IX ZR 1/99"}))
	assert.ErrorIs(t, err, caselaw.ErrCaseNotFound)
	assert.Empty(t, out)

	_, err = tools.Execute(context.Background(), call(ToolGetCase, map[string]any{"file_number": "1 StR 1/20"}))
	assert.Error(t, err)
}

func TestCaseLawTools_InvalidInput(t *testing.T) {
	tools := NewCaseLawTools(new(MockCaseLawClient))

	_, err := tools.Execute(context.Background(), domain.ToolCall{Name: ToolSearchCaseLaw, Input: json.RawMessage(`{"query":`)})
	assert.ErrorContains(t, err, "invalid tool input")

	_, err = tools.Execute(context.Background(), call(ToolSearchCaseLaw, map[string]any{}))
	assert.ErrorContains(t, err, "query is required")

	_, err = tools.Execute(context.Background(), call("delete_everything", map[string]any{}))
	assert.ErrorIs(t, err, errUnknownTool)

	_, err = NewCaseLawTools(nil).Execute(context.Background(), call(ToolGetCase, map[string]any{"file_number": "x"}))
	assert.ErrorIs(t, err, caselaw.ErrNotConfigured)
}

func TestCaseLawTools_Timeouts(t *testing.T) {
	tools := NewCaseLawTools(nil)
	assert.Equal(t, searchToolTimeout, tools.Timeout(ToolSearchCaseLaw))
	assert.Equal(t, fetchToolTimeout, tools.Timeout(ToolGetCase))
}
