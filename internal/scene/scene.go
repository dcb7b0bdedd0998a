// Package scene はシーンテンプレート(静的な読み取り専用データ)を扱います。
package scene

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownScene indicates the catalog has no template for an index.
var ErrUnknownScene = errors.New("unknown scene")

// Choice はプレイヤーが選べる行動です。
type Choice struct {
	ID          string `json:"id" yaml:"id"`
	Text        string `json:"text" yaml:"text"`
	AppliedStat string `json:"appliedStat" yaml:"appliedStat"` // 判定に使うステータス名
	Modifier    int    `json:"modifier" yaml:"modifier"`
}

// Turn はターン制シーンでの1手番です。
type Turn struct {
	Role    string   `json:"role" yaml:"role"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// Template はシーン1つ分の定義。
// Choicesはラウンド制(同時選択)、Turnsはターン制(順番選択)で使われる。
type Template struct {
	Index       int                 `json:"index" yaml:"index"`
	ID          string              `json:"id" yaml:"id"`
	Title       string              `json:"title" yaml:"title"`
	Description string              `json:"description,omitempty" yaml:"description"`
	RoleMap     map[string]string   `json:"roleMap,omitempty" yaml:"roleMap"`
	Choices     map[string][]Choice `json:"choices,omitempty" yaml:"choices"`
	Turns       []Turn              `json:"turns,omitempty" yaml:"turns"`
}

// TurnBased reports whether the scene defines a turn sequence.
func (t Template) TurnBased() bool {
	return len(t.Turns) > 0
}

// RoleSequence はターン順のロール一覧を返します。
func (t Template) RoleSequence() []string {
	roles := make([]string, 0, len(t.Turns))
	for _, turn := range t.Turns {
		roles = append(roles, turn.Role)
	}
	return roles
}

// Roles returns every role that can act in the scene, sorted.
func (t Template) Roles() []string {
	seen := make(map[string]bool)
	for role := range t.Choices {
		seen[role] = true
	}
	for _, turn := range t.Turns {
		seen[turn.Role] = true
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Catalog はシーン番号からテンプレートを引く読み取り専用カタログです。
type Catalog interface {
	Template(index int) (Template, error)
}

// StaticCatalog is a Catalog backed by an in-memory map.
type StaticCatalog map[int]Template

func (c StaticCatalog) Template(index int) (Template, error) {
	tmpl, ok := c[index]
	if !ok {
		return Template{}, fmt.Errorf("scene %d: %w", index, ErrUnknownScene)
	}
	return tmpl, nil
}

// Len returns the number of scenes in the catalog.
func (c StaticCatalog) Len() int {
	return len(c)
}

type catalogFile struct {
	Scenes []Template `yaml:"scenes"`
}

// LoadCatalog はYAMLファイルからカタログを読み込みます。
func LoadCatalog(filename string) (StaticCatalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read scene catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode scene catalog: %w", err)
	}
	catalog := make(StaticCatalog, len(file.Scenes))
	for _, tmpl := range file.Scenes {
		if _, dup := catalog[tmpl.Index]; dup {
			return nil, fmt.Errorf("duplicate scene index %d", tmpl.Index)
		}
		catalog[tmpl.Index] = tmpl
	}
	return catalog, nil
}
