package agentcore

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestAddShortTermMessageEvictsToLongTerm(t *testing.T) {
	ctx := NewContext(WithMaxShortTerm(2), WithMaxLongTerm(10))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "one", nil))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "two", nil))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "three", nil))

	require.Len(t, ctx.ShortTerm, 2)
	require.Len(t, ctx.LongTerm, 1)
	require.Equal(t, "one", ctx.LongTerm[0].Content)
	require.Equal(t, "two", ctx.ShortTerm[0].Content)
}

func TestAddShortTermMessageDropsOldestLongTerm(t *testing.T) {
	ctx := NewContext(WithMaxShortTerm(1), WithMaxLongTerm(1))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "a", nil))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "b", nil))
	ctx.AddShortTermMessage(NewMessage(RoleUser, "c", nil))

	require.Len(t, ctx.ShortTerm, 1)
	require.Equal(t, "c", ctx.ShortTerm[0].Content)
	require.Len(t, ctx.LongTerm, 1)
	require.Equal(t, "b", ctx.LongTerm[0].Content)
}

func TestApplyRunMetadataDoesNotOverwriteExisting(t *testing.T) {
	ctx := NewContext()
	ctx.SetRunContext("sess-1", "run-1")

	m := NewMessage(RoleUser, "hi", map[string]any{"session_id": "preexisting"})
	ctx.ApplyRunMetadata(&m)

	require.Equal(t, "preexisting", m.Metadata["session_id"])
	require.Equal(t, "run-1", m.Metadata["run_id"])
}

func TestBoundsInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("short_term and long_term never exceed their bounds", prop.ForAll(
		func(maxShort, maxLong, numMessages int) bool {
			ctx := NewContext(WithMaxShortTerm(maxShort), WithMaxLongTerm(maxLong))
			for i := 0; i < numMessages; i++ {
				ctx.AddShortTermMessage(NewMessage(RoleUser, "m", nil))
			}
			return len(ctx.ShortTerm) <= ctx.MaxShortTerm && len(ctx.LongTerm) <= ctx.MaxLongTerm
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
