package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
pipelines:
  - brand: codeteki
    name: Sales Outreach
    type: sales
    stages:
      - name: Initial Outreach
      - name: Follow-up 1
        days_until_followup: 5
      - name: Won
        is_terminal: true
        is_won: true
  - brand: codeteki
    name: Nurture
    type: nurture
    stages:
      - name: Check-in
        days_until_followup: 30
`

func TestSeedPipelines(t *testing.T) {
	t.Run("creates missing pipelines", func(t *testing.T) {
		s := NewInMemoryStore()

		created, err := SeedPipelines(s, []byte(seedYAML))
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		pipeline, err := s.FindPipelineByType("codeteki", PipelineTypeSales)
		require.NoError(t, err)
		require.NotNil(t, pipeline)
		require.Len(t, pipeline.Stages, 3)
		assert.Equal(t, 1, pipeline.Stages[0].StageOrder)
		assert.Equal(t, 3, pipeline.Stages[0].DaysUntilFollowup)
		assert.Equal(t, 5, pipeline.Stages[1].DaysUntilFollowup)
		assert.True(t, pipeline.Stages[2].IsWon)
	})

	t.Run("existing pipelines are left untouched", func(t *testing.T) {
		s := NewInMemoryStore()

		created, err := SeedPipelines(s, []byte(seedYAML))
		require.NoError(t, err)
		require.Equal(t, 2, created)

		created, err = SeedPipelines(s, []byte(seedYAML))
		require.NoError(t, err)
		assert.Equal(t, 0, created)

		pipelines, err := s.ListPipelines("codeteki")
		require.NoError(t, err)
		assert.Len(t, pipelines, 2)
	})

	t.Run("invalid seed is rejected", func(t *testing.T) {
		s := NewInMemoryStore()

		_, err := SeedPipelines(s, []byte("pipelines:\n  - name: Broken\n    type: sales\n"))
		require.Error(t, err)

		_, err = SeedPipelines(s, []byte("pipelines: ["))
		require.Error(t, err)
	})
}
