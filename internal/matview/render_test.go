package matview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullSpec() Spec {
	return Spec{
		Name:    "instrument_summary",
		Schema:  "features",
		Sources: []string{"features.clean_daily_bars"},
		Columns: []Column{
			{Name: "ts_code", Expr: "b.ts_code"},
			{Name: "bar_count", Expr: "count(*)"},
			{Name: "last_trade_date", Expr: "max(b.trade_date)"},
		},
		From:     "features.clean_daily_bars b",
		GroupBy:  []string{"b.ts_code"},
		Strategy: StrategyFull,
		UniqueBy: []string{"ts_code"},
	}
}

func incrementalSpec() Spec {
	return Spec{
		Name:    "market_daily_activity",
		Schema:  "features",
		Sources: []string{"features.clean_daily_bars"},
		Columns: []Column{
			{Name: "trade_date", Expr: "b.trade_date"},
			{Name: "total_volume", Expr: "sum(b.volume)"},
		},
		From:            "features.clean_daily_bars b",
		GroupBy:         []string{"b.trade_date"},
		Strategy:        StrategyIncremental,
		PartitionColumn: "trade_date",
		UniqueBy:        []string{"trade_date"},
	}
}

func TestRender_Deterministic(t *testing.T) {
	for _, spec := range []Spec{fullSpec(), incrementalSpec()} {
		first, err := Render(spec)
		require.NoError(t, err)
		second, err := Render(spec)
		require.NoError(t, err)
		assert.Equal(t, first, second, "identical spec must render byte-identical SQL")
	}
}

func TestRender_ColumnOrderFollowsDeclaration(t *testing.T) {
	sql, err := Render(fullSpec())
	require.NoError(t, err)

	tsPos := strings.Index(sql, "AS ts_code")
	countPos := strings.Index(sql, "AS bar_count")
	datePos := strings.Index(sql, "AS last_trade_date")
	require.True(t, tsPos >= 0 && countPos >= 0 && datePos >= 0)
	assert.Less(t, tsPos, countPos)
	assert.Less(t, countPos, datePos)
}

func TestRender_FullStrategyStagesAndSwaps(t *testing.T) {
	stmts, err := renderStatements(fullSpec())
	require.NoError(t, err)

	joined := strings.Join(stmts, ";\n")
	assert.Contains(t, joined, "CREATE TABLE features.instrument_summary__stage AS")
	assert.Contains(t, joined, "DROP TABLE IF EXISTS features.instrument_summary")
	assert.Contains(t, joined, "ALTER TABLE features.instrument_summary__stage RENAME TO instrument_summary")
	assert.Contains(t, joined, "CREATE UNIQUE INDEX instrument_summary_key")
}

func TestRender_IncrementalUpsert(t *testing.T) {
	stmts, err := renderStatements(incrementalSpec())
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	sql := stmts[0]
	assert.Contains(t, sql, "INSERT INTO features.market_daily_activity AS t (trade_date, total_volume)")
	assert.Contains(t, sql, "b.trade_date = $1", "partition filter must use the source expression")
	assert.Contains(t, sql, "ON CONFLICT (trade_date) DO UPDATE SET")
	assert.Contains(t, sql, "IS DISTINCT FROM", "unchanged rows must not be rewritten")
}

func TestRender_TargetHasNoHiddenSuffix(t *testing.T) {
	spec := fullSpec()
	assert.Equal(t, "features.instrument_summary", spec.Target())

	sql, err := Render(spec)
	require.NoError(t, err)
	// The stage suffix never survives: the final object is the plain name.
	assert.Contains(t, sql, "RENAME TO instrument_summary;")
}

func TestValidate_AllViolationsEnumerated(t *testing.T) {
	spec := Spec{
		Name:   "Bad Name",
		Schema: "features",
		Columns: []Column{
			{Name: "a", Expr: "x.a"},
			{Name: "a", Expr: "x.b"},
		},
		From:     "mystery_table m",
		Strategy: Strategy("weekly"),
	}

	err := Validate(spec)
	require.Error(t, err)

	var specErr *SpecError
	require.ErrorAs(t, err, &specErr)

	text := specErr.Error()
	assert.Contains(t, text, "not a legal identifier")
	assert.Contains(t, text, "no sources declared")
	assert.Contains(t, text, `duplicate output column "a"`)
	assert.Contains(t, text, "does not reference a declared source")
	assert.Contains(t, text, `unknown strategy "weekly"`)
	assert.GreaterOrEqual(t, len(specErr.Violations), 5, "every violation reported in one pass")
}

func TestValidate_RelationPositionMustBeDeclared(t *testing.T) {
	// Merely mentioning a declared source elsewhere in the fragment is not
	// enough; the relation being read must itself be declared.
	spec := fullSpec()
	spec.From = "raw_quotes q, features.clean_daily_bars b"

	var specErr *SpecError
	require.ErrorAs(t, Validate(spec), &specErr)
	assert.Contains(t, specErr.Error(), "does not reference a declared source")

	spec = fullSpec()
	spec.Joins = []string{"LEFT JOIN features.clean_daily_bars prev ON prev.ts_code = b.ts_code"}
	assert.NoError(t, Validate(spec))

	spec.Joins = []string{"LEFT JOIN raw_quotes q ON q.ts_code = b.ts_code -- features.clean_daily_bars"}
	require.ErrorAs(t, Validate(spec), &specErr)
	assert.Contains(t, specErr.Error(), "does not reference a declared source")
}

func TestValidate_IncrementalRequirements(t *testing.T) {
	spec := incrementalSpec()
	spec.PartitionColumn = ""
	spec.UniqueBy = nil

	var specErr *SpecError
	require.ErrorAs(t, Validate(spec), &specErr)
	text := specErr.Error()
	assert.Contains(t, text, "requires a partition column")
	assert.Contains(t, text, "requires a unique column set")
}

func TestValidate_Builtins(t *testing.T) {
	for _, spec := range Builtin() {
		assert.NoError(t, Validate(spec), spec.Name)
	}
}
