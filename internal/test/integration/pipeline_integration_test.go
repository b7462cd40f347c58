package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reshape/internal/core/config"
	"reshape/internal/data/history"
	"reshape/internal/engine"
	"reshape/internal/plan"
	"reshape/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createProjectFiles(t *testing.T, tmpDir string) {
	shapes := `def area(r):
    return 3.14 * r * r
`
	err := os.WriteFile(filepath.Join(tmpDir, "shapes.py"), []byte(shapes), 0644)
	require.NoError(t, err)

	app := `from shapes import area

total = area(2)
`
	err = os.WriteFile(filepath.Join(tmpDir, "app.py"), []byte(app), 0644)
	require.NoError(t, err)
}

func TestFullPipelineIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	createProjectFiles(t, tmpDir)

	cfg := &config.Config{
		Version:  1,
		Project:  config.Project{Root: tmpDir},
		Analysis: config.Analysis{Workers: 2},
	}

	eng := engine.New(cfg)
	ctx := context.Background()

	analysis, err := eng.Analyze(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, analysis.Project.FileCount())
	assert.Empty(t, analysis.ParseFails)
	assert.Empty(t, analysis.Findings, "fixture should resolve cleanly")

	op, err := transform.Build("rename", transform.Args{
		"target": "shapes.area",
		"name":   "circle_area",
	})
	require.NoError(t, err)

	p, err := eng.Plan(ctx, analysis, op)
	require.NoError(t, err)
	assert.Len(t, p.Files, 2, "rename should touch declaration and call site files")
	analysis.Close()

	// Serialized plans must survive a round trip unchanged.
	data, err := p.Serialize()
	require.NoError(t, err)
	restored, err := plan.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, restored.ID)
	assert.Equal(t, p.EditCount(), restored.EditCount())

	// Apply every file's edits back to disk.
	for _, fp := range restored.Files {
		before, err := os.ReadFile(fp.Path)
		require.NoError(t, err)
		after, err := plan.Apply(before, fp.Edits)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(fp.Path, after, 0644))
	}

	rewritten, err := os.ReadFile(filepath.Join(tmpDir, "app.py"))
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "from shapes import circle_area")
	assert.Contains(t, string(rewritten), "total = circle_area(2)")
	assert.NotContains(t, string(rewritten), "area(2)\n")

	// The rewritten project has to analyze as cleanly as the original.
	reanalysis, err := engine.New(cfg).Analyze(ctx)
	require.NoError(t, err)
	defer reanalysis.Close()
	assert.Empty(t, reanalysis.ParseFails)
	assert.Empty(t, reanalysis.Findings, "rename must not introduce unresolved references")
}

func TestHistoryRecordsPlannedOperations(t *testing.T) {
	tmpDir := t.TempDir()
	createProjectFiles(t, tmpDir)

	cfg := &config.Config{
		Version:  1,
		Project:  config.Project{Root: tmpDir},
		Analysis: config.Analysis{Workers: 1},
	}

	eng := engine.New(cfg)
	ctx := context.Background()

	analysis, err := eng.Analyze(ctx)
	require.NoError(t, err)
	defer analysis.Close()

	op, err := transform.Build("rename", transform.Args{
		"target": "shapes.area",
		"name":   "surface",
	})
	require.NoError(t, err)
	p, err := eng.Plan(ctx, analysis, op)
	require.NoError(t, err)

	store, err := history.Open(filepath.Join(tmpDir, "history.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.SaveRecord(history.Record{
		PlanID:    p.ID,
		Kind:      p.Kind,
		Target:    "shapes.area",
		Outcome:   history.OutcomePlanned,
		FileCount: len(p.Files),
		EditCount: p.EditCount(),
	})
	require.NoError(t, err)

	records, err := store.LoadRecords("default", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, p.ID, records[0].PlanID)
	assert.Equal(t, "rename", records[0].Kind)
	assert.Equal(t, history.OutcomePlanned, records[0].Outcome)
	assert.Equal(t, p.EditCount(), records[0].EditCount)
}
