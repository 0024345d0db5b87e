package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Query
	}{
		{"Plain prefix", "hel", Query{FieldMessageText, "hel", DefaultLimit}},
		{"Command prefix is dropped", "/find hello wor", Query{FieldMessageText, "hello wor", DefaultLimit}},
		{"Field flag", "/find --field channelName gen", Query{FieldChannelName, "gen", DefaultLimit}},
		{"Limit flag", "--limit 2 --field messageText Hi", Query{FieldMessageText, "Hi", 2}},
		{"Unknown field is ignored", "--field rooms ops", Query{FieldMessageText, "ops", DefaultLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NewSearchQuery(tt.input))
		})
	}
}

func TestQuery_Blank(t *testing.T) {
	req := require.New(t)
	req.True(Query{Prefix: "   "}.Blank())
	req.False(Query{Prefix: " a"}.Blank())
}
