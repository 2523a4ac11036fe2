package phaseset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/config"
)

func testContext() *Context {
	return &Context{
		SpecID:    "demo",
		Idea:      "build a widget catalogue",
		Config:    config.Default(),
		Artifacts: map[Name]ArtifactSet{},
	}
}

func TestAll_SixPhasesInOrder(t *testing.T) {
	phases := All()
	require.Len(t, phases, 6)
	require.Equal(t, []Name{Requirements, Design, Tasks, Review, Fixup, Final}, []Name{
		phases[0].Name, phases[1].Name, phases[2].Name, phases[3].Name, phases[4].Name, phases[5].Name,
	})
}

func TestRequirementsPhase_BuildAndPostprocess(t *testing.T) {
	ctx := testContext()
	phase := All()[0]

	prompt, err := phase.BuildPrompt(ctx)
	require.NoError(t, err)
	require.Contains(t, prompt, "demo")
	require.Contains(t, prompt, "widget catalogue")

	raw := "Some preamble.\n\n```markdown\n# Requirements\n\nBuild a widget catalogue.\n```\n\n```yaml\ntitle: widget catalogue\n```\n"
	out, err := phase.Postprocess(ctx, raw)
	require.NoError(t, err)
	require.Contains(t, out.Artifacts, "00-requirements.md")
	require.Contains(t, out.Artifacts, "00-requirements.core.yaml")
	require.Contains(t, string(out.Artifacts["00-requirements.md"]), "Build a widget catalogue")
}

func TestPostprocess_MissingYAMLFenceFails(t *testing.T) {
	ctx := testContext()
	phase := All()[0]

	raw := "```markdown\n# Requirements\n```\n"
	_, err := phase.Postprocess(ctx, raw)
	require.Error(t, err)
}

func TestReviewPhase_ExtractsDiffsAndWarnsWhenNone(t *testing.T) {
	ctx := testContext()
	phase := All()[3]
	require.Equal(t, Review, phase.Name)

	raw := "```markdown\n# Review\n\nLooks good.\n```\n\n```yaml\nstatus: ok\n```\n"
	out, err := phase.Postprocess(ctx, raw)
	require.NoError(t, err)
	require.Empty(t, out.Diffs)
	require.Contains(t, out.Warnings, "review produced no fixup diffs")
}

func TestReviewPhase_ExtractsDiffBlock(t *testing.T) {
	ctx := testContext()
	phase := All()[3]

	raw := "```markdown\n# Review\n```\n\n```yaml\nstatus: needs-changes\n```\n\n" +
		"```diff\n--- a/00-requirements.md\n+++ b/00-requirements.md\n@@ -1,1 +1,1 @@\n-old\n+new\n```\n"
	out, err := phase.Postprocess(ctx, raw)
	require.NoError(t, err)
	require.Len(t, out.Diffs, 1)
	require.Empty(t, out.Warnings)
}

func TestFixupPhase_NeverInvokesBackend(t *testing.T) {
	ctx := testContext()
	phase := All()[4]
	require.Equal(t, Fixup, phase.Name)

	_, err := phase.BuildPrompt(ctx)
	require.Error(t, err)
	_, err = phase.Postprocess(ctx, "anything")
	require.Error(t, err)
}

func TestFinalPhase_DependsOnAllPriorPhases(t *testing.T) {
	phase := All()[5]
	require.Equal(t, Final, phase.Name)
	require.ElementsMatch(t, []Name{Requirements, Design, Tasks, Review, Fixup}, phase.DependsOn)
}
