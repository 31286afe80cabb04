package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "counsel", Short: "root"}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	AddHelpJSONFlag(root)

	conv := &cobra.Command{Use: "conversations", Aliases: []string{"conv"}, Short: "history"}
	show := &cobra.Command{Use: "show <id>", Short: "print one", Args: cobra.ExactArgs(1), RunE: func(*cobra.Command, []string) error { return nil }}
	show.Flags().Int("limit", 0, "max messages")
	show.Flags().String("org", "", "organization")
	_ = show.MarkFlagRequired("org")
	conv.AddCommand(show)
	conv.AddCommand(&cobra.Command{Use: "secret", Hidden: true})
	root.AddCommand(conv)
	return root
}

func TestWriteHelpJSON(t *testing.T) {
	t.Run("absent flag is not handled", func(t *testing.T) {
		var buf bytes.Buffer
		handled, err := WriteHelpJSON(testTree(), []string{"conversations", "list"}, &buf)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, buf.String())
	})

	t.Run("resolves alias and skips positional args", func(t *testing.T) {
		var buf bytes.Buffer
		handled, err := WriteHelpJSON(testTree(), []string{"conv", "show", "abc", "--help-json"}, &buf)
		require.NoError(t, err)
		require.True(t, handled)

		var schema CommandSchema
		require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
		assert.Equal(t, "show", schema.Name)

		byName := map[string]FlagSchema{}
		for _, f := range schema.Flags {
			byName[f.Name] = f
		}
		assert.Contains(t, byName, "limit")
		assert.True(t, byName["org"].Required)
		assert.False(t, byName["limit"].Required)
		assert.True(t, byName["output"].Inherited)
		assert.NotContains(t, byName, "help-json")
	})
}

func TestGenerateSchema_HidesHiddenCommands(t *testing.T) {
	root := testTree()
	root.InitDefaultHelpCmd()

	schema := GenerateSchema(root)
	require.Len(t, schema.Subcommands, 1)
	conv := schema.Subcommands[0]
	assert.Equal(t, []string{"conv"}, conv.Aliases)
	require.Len(t, conv.Subcommands, 1)
	assert.Equal(t, "show", conv.Subcommands[0].Name)
}
