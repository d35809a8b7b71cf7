package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalRunbook = `
[runbook]
title = "deploy"
description = "a deploy playbook"
version = "1"
author = "ops"
created_at = "2026-01-01T00:00:00Z"

[build]
type = "manual"
prompt_after = "built?"

[test]
type = "manual"
prompt_after = "tested?"

[release]
type = "manual"
prompt_after = "released?"
`

func TestParse_BasicMetadataAndNodeOrder(t *testing.T) {
	rb, vars, err := Parse([]byte(minimalRunbook), Options{})
	require.NoError(t, err)
	assert.Equal(t, "deploy", rb.Title)
	assert.Equal(t, []string{"build", "test", "release"}, rb.NodeOrder)
	assert.Empty(t, vars)
}

func TestParse_MissingRunbookTableIsError(t *testing.T) {
	_, _, err := Parse([]byte(`[build]
type = "manual"
prompt_after = "x"
`), Options{})
	require.Error(t, err)
}

func TestParse_UnknownNodeFieldIsError(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[build]
type = "manual"
prompt_after = "x"
bogus_field = 1
`
	_, _, err := Parse([]byte(src), Options{})
	require.Error(t, err)
}

func TestParse_ImplicitLinearDependsOn(t *testing.T) {
	rb, _, err := Parse([]byte(minimalRunbook), Options{})
	require.NoError(t, err)
	assert.Empty(t, rb.Nodes["build"].DependsOn)
	assert.Equal(t, []string{"build"}, rb.Nodes["test"].DependsOn)
	assert.Equal(t, []string{"test"}, rb.Nodes["release"].DependsOn)
}

func TestParse_CaretDependsOnMeansPreviousNode(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[build]
type = "manual"
prompt_after = "x"

[test]
type = "manual"
prompt_after = "x"
depends_on = "^"
`
	rb, _, err := Parse([]byte(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, rb.Nodes["test"].DependsOn)
}

func TestParse_StarDependsOnMeansAllPriorNodes(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[a]
type = "manual"
prompt_after = "x"

[b]
type = "manual"
prompt_after = "x"
depends_on = "a"

[c]
type = "manual"
prompt_after = "x"
depends_on = "*"
`
	rb, _, err := Parse([]byte(src), Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, rb.Nodes["c"].DependsOn)
}

func TestParse_ConditionalSuffixFoldsIntoWhen(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[build]
type = "manual"
prompt_after = "x"

[notify]
type = "manual"
prompt_after = "x"
depends_on = "build:failure"
`
	rb, _, err := Parse([]byte(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, rb.Nodes["notify"].DependsOn)
	assert.Equal(t, `has_failed("build")`, rb.Nodes["notify"].When)
}

func TestParse_VariableSubstitutionAndPriorityOrder(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[variables]
region = { type = "string", default = "us-east" }

[build]
type = "manual"
prompt_after = "deploy to {{ region }}?"
`
	rb, vars, err := Parse([]byte(src), Options{
		CLIVars: map[string]any{"region": "eu-west"},
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", vars["region"])
	assert.Equal(t, "deploy to eu-west?", rb.Nodes["build"].PromptAfter)
}

func TestParse_WhenExpressionIsNotPreRendered(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[variables]
region = { type = "string", default = "us-east" }

[build]
type = "manual"
prompt_after = "x"
when = "{{ previous_node('other').exit_code == 0 }}"
`
	rb, _, err := Parse([]byte(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, "previous_node('other').exit_code == 0", rb.Nodes["build"].When)
}

func TestParse_DefaultTimeoutSecondsAppliedWhenNodeOmitsTimeout(t *testing.T) {
	rb, _, err := Parse([]byte(minimalRunbook), Options{DefaultTimeoutSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, 60, rb.Nodes["build"].Timeout)
}

func TestParse_ExplicitNodeTimeoutOverridesDefault(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[build]
type = "manual"
prompt_after = "x"
timeout = 10
`
	rb, _, err := Parse([]byte(src), Options{DefaultTimeoutSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, 10, rb.Nodes["build"].Timeout)
}

func TestParse_MissingRequiredVariableWithoutPromptIsError(t *testing.T) {
	src := `
[runbook]
title = "t"
description = "d"
version = "1"
author = "me"
created_at = "2026-01-01"

[variables]
token = { type = "string", required = true }

[build]
type = "manual"
prompt_after = "x"
`
	_, _, err := Parse([]byte(src), Options{})
	require.Error(t, err)
}
