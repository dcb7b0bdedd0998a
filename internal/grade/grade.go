// Package grade はダイス判定の結果を4段階の評価(SP/S/F/SF)に変換します。
package grade

// Grade は判定結果の4段階評価です。
type Grade string

const (
	CriticalSuccess Grade = "SP" // 大成功
	Success         Grade = "S"  // 成功
	Failure         Grade = "F"  // 失敗
	CriticalFailure Grade = "SF" // 大失敗
)

// Label returns a human readable label for the grade.
func (g Grade) Label() string {
	switch g {
	case CriticalSuccess:
		return "critical success"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case CriticalFailure:
		return "critical failure"
	default:
		return "unknown"
	}
}

// Grader は出目・合計値・DCから評価を決めるストラテジーです。
type Grader interface {
	Grade(roll, total, dc int) Grade
}

// GraderFunc adapts a function to the Grader interface.
type GraderFunc func(roll, total, dc int) Grade

func (f GraderFunc) Grade(roll, total, dc int) Grade {
	return f(roll, total, dc)
}

// d20の自然最大値・最小値
const (
	NaturalMax = 20
	NaturalMin = 1
)

// D20 はシーン判定用の標準ストラテジー。
// クリティカル判定(出目20/出目1)は常に合計値の判定より優先される。
var D20 Grader = GraderFunc(func(roll, total, dc int) Grade {
	if roll == NaturalMax {
		return CriticalSuccess
	}
	if roll == NaturalMin {
		return CriticalFailure
	}
	switch {
	case total >= dc+4:
		return CriticalSuccess
	case total >= dc:
		return Success
	case total >= dc-3:
		return Failure
	default:
		return CriticalFailure
	}
})

// AbilityCheck は能力値チェック用のストラテジー。
// DC±8の幅で大成功・大失敗になる。
var AbilityCheck Grader = GraderFunc(func(roll, total, dc int) Grade {
	switch {
	case roll == NaturalMax || total >= dc+8:
		return CriticalSuccess
	case roll == NaturalMin || total <= dc-8:
		return CriticalFailure
	case total >= dc:
		return Success
	default:
		return Failure
	}
})

// Total は出目・ステータス値・選択肢補正を合算します。
func Total(roll, stat, modifier int) int {
	return roll + stat + modifier
}

// 難易度ごとのDC
var difficultyClasses = map[string]int{
	"easy":   10,
	"normal": 13,
	"hard":   16,
}

// DefaultDC は未知の難易度に使われるDCです。
const DefaultDC = 10

// DC returns the difficulty class for a named difficulty.
func DC(difficulty string) int {
	if dc, ok := difficultyClasses[difficulty]; ok {
		return dc
	}
	return DefaultDC
}

// AbilityModifier はステータス値(1~10)を補正値に変換します。範囲外は0。
func AbilityModifier(score int) int {
	table := map[int]int{1: -3, 2: -2, 3: -2, 4: -1, 5: 0, 6: 1, 7: 2, 8: 3, 9: 4, 10: 5}
	return table[score]
}
