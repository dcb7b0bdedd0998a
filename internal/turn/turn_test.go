package turn

import (
	"errors"
	"testing"

	"trpgserver/internal/gm"
	"trpgserver/internal/grade"
	"trpgserver/internal/scene"
	"trpgserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRoller は常に同じ出目を返します。
func fixedRoller(n int) grade.Roller {
	return grade.RollerFunc(func(sides int) int { return n })
}

func testTemplate() scene.Template {
	return scene.Template{
		Index: 0,
		Turns: []scene.Turn{
			{Role: "brother", Choices: []scene.Choice{
				{ID: "A", Text: "Sprint down the mountain path", AppliedStat: "strength", Modifier: 0},
				{ID: "B", Text: "Hide", AppliedStat: "wisdom", Modifier: 1},
			}},
			{Role: "sister", Choices: []scene.Choice{
				{ID: "C", Text: "Erase footprints", AppliedStat: "wisdom", Modifier: -1},
			}},
		},
		Choices: map[string][]scene.Choice{
			"tiger":   {{ID: "L", Text: "Shake the tree", AppliedStat: "strength", Modifier: 1}},
			"goddess": {{ID: "X", Text: "Lower a rope", AppliedStat: "luck", Modifier: 2}},
		},
	}
}

func TestResolveTurnEndToEnd(t *testing.T) {
	r := New(fixedRoller(15), FixedStat(2), WithDC(10))

	out, err := r.ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)

	assert.Equal(t, 0, out.SceneIndex)
	assert.Equal(t, models.TurnResult{
		Role:        "brother",
		ChoiceID:    "A",
		Grade:       "SP",
		Dice:        15,
		AppliedStat: "strength",
		StatValue:   2,
		Modifier:    0,
		Total:       17,
	}, out.Result)
	assert.Equal(t, "brother: d20=15 + strength(2) + mod(0) = 17 → SP (critical success)", out.Log)
}

func TestResolveTurnUnknownRole(t *testing.T) {
	r := New(fixedRoller(10), nil)
	_, err := r.ResolveTurn(testTemplate(), 0, "tiger", "L")
	var unknown *UnknownRoleError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "tiger", unknown.Role)
}

func TestResolveTurnUnknownChoice(t *testing.T) {
	r := New(fixedRoller(10), nil)
	_, err := r.ResolveTurn(testTemplate(), 3, "brother", "Z")
	var unknown *UnknownChoiceError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 3, unknown.SceneIndex)
	assert.Equal(t, "Z", unknown.ChoiceID)
}

func TestDefaultStatValue(t *testing.T) {
	r := New(fixedRoller(10), nil)
	out, err := r.ResolveTurn(testTemplate(), 0, "sister", "C")
	require.NoError(t, err)
	assert.Equal(t, DefaultStatValue, out.Result.StatValue)
	assert.Equal(t, 11, out.Result.Total)
	assert.Equal(t, "S", out.Result.Grade)
}

func TestAbilityCheckGrader(t *testing.T) {
	// 出目15+2=17はDC10ではD20なら大成功、能力値チェックなら成功
	r := New(fixedRoller(15), FixedStat(2), WithGrader(grade.AbilityCheck))
	out, err := r.ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, "S", out.Result.Grade)
}

func TestDieSides(t *testing.T) {
	var asked int
	roller := grade.RollerFunc(func(sides int) int {
		asked = sides
		return 3
	})
	r := New(roller, FixedStat(0), WithDieSides(6), WithDC(4))
	out, err := r.ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, 6, asked)
	assert.Contains(t, out.Log, "d6=3")
}

func TestResolveRound(t *testing.T) {
	r := New(fixedRoller(10), FixedStat(1))
	out, err := r.ResolveRound(testTemplate(), 1, map[string]string{"tiger": "L", "goddess": "X"})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "goddess", out.Results[0].Role)
	assert.Equal(t, 13, out.Results[0].Total)
	assert.Equal(t, "tiger", out.Results[1].Role)
	assert.Equal(t, 12, out.Results[1].Total)
	assert.Len(t, out.Logs, 2)
}

func TestResolveRoundUnknownChoice(t *testing.T) {
	r := New(fixedRoller(10), nil)
	_, err := r.ResolveRound(testTemplate(), 1, map[string]string{"tiger": "nope"})
	var unknown *UnknownChoiceError
	assert.True(t, errors.As(err, &unknown))
}

func TestSimulateAI(t *testing.T) {
	// 選択肢2つの場合、出目2で2番目を選ぶ
	r := New(fixedRoller(2), FixedStat(2))
	out, err := r.SimulateAI(testTemplate(), 0, "brother")
	require.NoError(t, err)
	assert.True(t, out.Result.AI)
	assert.Equal(t, "B", out.Result.ChoiceID)

	out, err = r.SimulateAI(testTemplate(), 0, "tiger")
	require.NoError(t, err)
	assert.Equal(t, "L", out.Result.ChoiceID)

	_, err = r.SimulateAI(testTemplate(), 0, "nobody")
	var unknown *UnknownRoleError
	assert.True(t, errors.As(err, &unknown))
}

func TestWithStatsUsesGMState(t *testing.T) {
	st := gm.State{Party: []gm.Member{{ID: "c1", Role: "brother", Sheet: gm.Sheet{Stats: map[string]int{"strength": 5}}}}}
	base := New(fixedRoller(10), FixedStat(0))
	r := base.WithStats(st)

	out, err := r.ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, 5, out.Result.StatValue)
	assert.Equal(t, 15, out.Result.Total)

	// 元のResolverは変わらない
	out, err = base.ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result.StatValue)
}

func TestNaturalRollsThroughResolver(t *testing.T) {
	out, err := New(fixedRoller(20), FixedStat(-30)).ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, "SP", out.Result.Grade)

	out, err = New(fixedRoller(1), FixedStat(30)).ResolveTurn(testTemplate(), 0, "brother", "A")
	require.NoError(t, err)
	assert.Equal(t, "SF", out.Result.Grade)
}
