// Package turn resolves a player's choice into a graded TurnResult.
package turn

import (
	"fmt"
	"sort"

	"trpgserver/internal/grade"
	"trpgserver/internal/scene"
	"trpgserver/models"
)

// UnknownRoleError はテンプレートにロールが存在しないことを示します。
type UnknownRoleError struct {
	SceneIndex int
	Role       string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("scene %d: unknown role %q", e.SceneIndex, e.Role)
}

// UnknownChoiceError はロールの選択肢にchoiceIDが存在しないことを示します。
type UnknownChoiceError struct {
	SceneIndex int
	Role       string
	ChoiceID   string
}

func (e *UnknownChoiceError) Error() string {
	return fmt.Sprintf("scene %d: role %q has no choice %q", e.SceneIndex, e.Role, e.ChoiceID)
}

// StatSource supplies the stat value used for a check.
type StatSource interface {
	StatValue(role, stat string) int
}

// FixedStat はどのロール・ステータスにも同じ値を返します。
type FixedStat int

func (f FixedStat) StatValue(role, stat string) int {
	return int(f)
}

// DefaultStatValue はキャラクターシートが無い場合のステータス値です。
const DefaultStatValue = 2

// Outcome is the result of resolving one choice.
type Outcome struct {
	SceneIndex int               `json:"sceneIndex"`
	Result     models.TurnResult `json:"result"`
	Log        string            `json:"log"`
}

// RoundOutcome holds every result of a round-based scene, in role order.
type RoundOutcome struct {
	SceneIndex int                 `json:"sceneIndex"`
	Results    []models.TurnResult `json:"results"`
	Logs       []string            `json:"logs"`
}

// Resolver は出目・ステータス・修正値から判定します。状態は持ちません。
type Resolver struct {
	roller grade.Roller
	stats  StatSource
	grader grade.Grader
	dc     int
	sides  int
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithGrader(g grade.Grader) Option {
	return func(r *Resolver) { r.grader = g }
}

func WithDC(dc int) Option {
	return func(r *Resolver) { r.dc = dc }
}

func WithDieSides(sides int) Option {
	return func(r *Resolver) {
		if sides > 0 {
			r.sides = sides
		}
	}
}

// New creates a Resolver. A nil stats source falls back to FixedStat(DefaultStatValue).
func New(roller grade.Roller, stats StatSource, opts ...Option) *Resolver {
	if stats == nil {
		stats = FixedStat(DefaultStatValue)
	}
	r := &Resolver{
		roller: roller,
		stats:  stats,
		grader: grade.D20,
		dc:     grade.DefaultDC,
		sides:  grade.NaturalMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithStats returns a copy of r bound to another stat source.
func (r *Resolver) WithStats(stats StatSource) *Resolver {
	c := *r
	if stats != nil {
		c.stats = stats
	}
	return &c
}

// DC returns the difficulty class used by the resolver.
func (r *Resolver) DC() int {
	return r.dc
}

// ResolveTurn はターン制シーンでの選択を判定します。
func (r *Resolver) ResolveTurn(tmpl scene.Template, sceneIndex int, role, choiceID string) (Outcome, error) {
	choices, ok := turnChoices(tmpl, role)
	if !ok {
		return Outcome{}, &UnknownRoleError{SceneIndex: sceneIndex, Role: role}
	}
	return r.resolve(sceneIndex, role, choices, choiceID)
}

// ResolveChoice はラウンド制シーンでの選択を判定します。
func (r *Resolver) ResolveChoice(tmpl scene.Template, sceneIndex int, role, choiceID string) (Outcome, error) {
	choices, ok := tmpl.Choices[role]
	if !ok {
		return Outcome{}, &UnknownRoleError{SceneIndex: sceneIndex, Role: role}
	}
	return r.resolve(sceneIndex, role, choices, choiceID)
}

// ResolveRound resolves every submitted choice, sorted by role.
func (r *Resolver) ResolveRound(tmpl scene.Template, sceneIndex int, choices map[string]string) (RoundOutcome, error) {
	roles := make([]string, 0, len(choices))
	for role := range choices {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	out := RoundOutcome{SceneIndex: sceneIndex, Results: []models.TurnResult{}, Logs: []string{}}
	for _, role := range roles {
		o, err := r.ResolveChoice(tmpl, sceneIndex, role, choices[role])
		if err != nil {
			return RoundOutcome{}, err
		}
		out.Results = append(out.Results, o.Result)
		out.Logs = append(out.Logs, o.Log)
	}
	return out, nil
}

// SimulateAI はAIが操作するロールの選択肢をランダムに選んで判定します。
// ターン定義があればそれを、なければラウンドの選択肢を使います。
func (r *Resolver) SimulateAI(tmpl scene.Template, sceneIndex int, role string) (Outcome, error) {
	choices, ok := turnChoices(tmpl, role)
	if !ok {
		choices, ok = tmpl.Choices[role]
	}
	if !ok || len(choices) == 0 {
		return Outcome{}, &UnknownRoleError{SceneIndex: sceneIndex, Role: role}
	}
	pick := r.roller.Roll(len(choices)) - 1
	if pick < 0 || pick >= len(choices) {
		pick = 0
	}
	o, err := r.resolve(sceneIndex, role, choices, choices[pick].ID)
	if err != nil {
		return Outcome{}, err
	}
	o.Result.AI = true
	return o, nil
}

func (r *Resolver) resolve(sceneIndex int, role string, choices []scene.Choice, choiceID string) (Outcome, error) {
	var choice *scene.Choice
	for i := range choices {
		if choices[i].ID == choiceID {
			choice = &choices[i]
			break
		}
	}
	if choice == nil {
		return Outcome{}, &UnknownChoiceError{SceneIndex: sceneIndex, Role: role, ChoiceID: choiceID}
	}

	roll := r.roller.Roll(r.sides)
	stat := r.stats.StatValue(role, choice.AppliedStat)
	total := grade.Total(roll, stat, choice.Modifier)
	g := r.grader.Grade(roll, total, r.dc)

	result := models.TurnResult{
		Role:        role,
		ChoiceID:    choice.ID,
		Grade:       string(g),
		Dice:        roll,
		AppliedStat: choice.AppliedStat,
		StatValue:   stat,
		Modifier:    choice.Modifier,
		Total:       total,
	}
	return Outcome{
		SceneIndex: sceneIndex,
		Result:     result,
		Log:        logLine(result, r.sides, g),
	}, nil
}

// logLine formats e.g. "brother: d20=15 + strength(2) + mod(0) = 17 → SP (critical success)".
func logLine(res models.TurnResult, sides int, g grade.Grade) string {
	return fmt.Sprintf("%s: d%d=%d + %s(%d) + mod(%d) = %d → %s (%s)",
		res.Role, sides, res.Dice, res.AppliedStat, res.StatValue, res.Modifier, res.Total, g, g.Label())
}

func turnChoices(tmpl scene.Template, role string) ([]scene.Choice, bool) {
	for _, t := range tmpl.Turns {
		if t.Role == role {
			return t.Choices, true
		}
	}
	return nil, false
}
