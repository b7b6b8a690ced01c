package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	u.Add(TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})

	assert.Equal(t, 13, u.PromptTokens)
	assert.Equal(t, 7, u.CompletionTokens)
	assert.Equal(t, 20, u.TotalTokens)
}

func TestAgentRole_Valid(t *testing.T) {
	for _, r := range []AgentRole{RoleArchitect, RoleCoder, RoleReviewer, RoleTester, RoleFixer, RoleJudge} {
		assert.True(t, r.Valid(), string(r))
	}
	assert.False(t, AgentRole("manager").Valid())
	assert.False(t, AgentRole("").Valid())
}
