package types

// AgentRole identifies a role-specialized agent in the pipeline.
type AgentRole string

const (
	RoleArchitect AgentRole = "architect" // produces spec and plan
	RoleCoder     AgentRole = "coder"     // generates implementation files
	RoleReviewer  AgentRole = "reviewer"  // approves or rejects generated code
	RoleTester    AgentRole = "tester"    // writes tests
	RoleFixer     AgentRole = "fixer"     // repairs rejected code or failing tests
	RoleJudge     AgentRole = "judge"     // final quality verdict
)

// Valid reports whether the role is one of the known pipeline roles.
func (r AgentRole) Valid() bool {
	switch r {
	case RoleArchitect, RoleCoder, RoleReviewer, RoleTester, RoleFixer, RoleJudge:
		return true
	}
	return false
}
