package gm

import (
	"encoding/json"
	"errors"
	"testing"

	"trpgserver/internal/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func testState() State {
	return State{
		SessionID: "room-1",
		Turn:      3,
		World:     World{Time: "night", Location: "forest", Notes: "fog"},
		Party: []Member{
			{ID: "p1", Name: "Haru", Role: "brother", Sheet: Sheet{
				Stats:  map[string]int{"stamina": 4},
				Items:  []Item{{Name: "rope"}, {Name: "torch", Charges: intp(3)}},
				Spells: []Item{{Name: "light", Charges: intp(2)}},
				HP:     10,
				Status: []string{"tired"},
			}},
			{ID: "p2", Name: "Dal", Role: "sister", Sheet: Sheet{
				Stats: map[string]int{"wisdom": 5},
				HP:    8,
			}},
		},
		HurtCount: map[string]int{},
		Cooldowns: map[string]map[string]int{"p1": {"dash": 1}},
	}
}

func TestNormalizeEmptyObject(t *testing.T) {
	prior := testState()
	res := Normalize(prior, []byte(`{}`))

	assert.Equal(t, 4, res.Turn)
	assert.Equal(t, "", res.Narration)
	assert.Equal(t, map[string]string{"p1": "", "p2": ""}, res.Personal)
	require.NotNil(t, res.World.Location)
	assert.Equal(t, "forest", *res.World.Location)
	assert.Empty(t, res.Party)
	assert.Empty(t, res.LogAppend)
	assert.Equal(t, "forest", res.Shari.Update.CurrentLocation)
	assert.Nil(t, res.Shari.Update.PreviousLocation)
	assert.NotNil(t, res.Shari.Update.CharacterHurt)
	assert.NotNil(t, res.Shari.Update.Inventory.Consumed)
	assert.NotNil(t, res.Shari.Update.Inventory.Added)
	assert.NotNil(t, res.Shari.Update.Inventory.Charges)
	assert.NotNil(t, res.Shari.Update.Skills.Cooldown)
	assert.NotNil(t, res.Shari.Assess)
	assert.NotNil(t, res.Shari.Rolls)
}

func TestNormalizePersonalOnlyForParty(t *testing.T) {
	res := Normalize(testState(), []byte(`{"personal": {"p1": "You hear a growl.", "ghost": "boo", "": "empty"}}`))
	assert.Equal(t, map[string]string{"p1": "You hear a growl.", "p2": ""}, res.Personal)
}

func TestNormalizeGarbage(t *testing.T) {
	prior := testState()
	for _, raw := range []string{"", "not json", "[1,2]", `{"turn":"x","personal":[1],"party":"p1","shari":7}`} {
		res := Normalize(prior, []byte(raw))
		assert.Equal(t, 4, res.Turn, raw)
		assert.Len(t, res.Personal, 2, raw)
		assert.Empty(t, res.Party, raw)
	}
}

func TestNormalizeFiltersAssessAndRolls(t *testing.T) {
	raw := `{
		"shari": {
			"assess": [
				{"player_id": "p1", "action": "run", "dangerous": true, "destination": null},
				{"player_id": "ghost", "action": "haunt"},
				{"action": "anonymous"},
				"not an object"
			],
			"rolls": [
				{"player_id": "p2", "d6": 5, "outcome": "favorable"},
				{"player_id": "p9", "d6": 1}
			]
		}
	}`
	res := Normalize(testState(), []byte(raw))

	require.Len(t, res.Shari.Assess, 2)
	assert.Equal(t, "p1", res.Shari.Assess[0].PlayerID)
	assert.True(t, res.Shari.Assess[0].Dangerous)
	assert.Nil(t, res.Shari.Assess[0].Destination)
	assert.Equal(t, "", res.Shari.Assess[1].PlayerID)

	require.Len(t, res.Shari.Rolls, 1)
	assert.Equal(t, Roll{PlayerID: "p2", D6: 5, Outcome: "favorable"}, res.Shari.Rolls[0])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := `{
		"turn": 4,
		"narration": "The tiger circles.",
		"personal": {"p1": "You shiver.", "p2": 12, "p3": "stranger"},
		"world": {"time": "dawn", "notes": "cold"},
		"party": [{"id": "p1", "changes": {"hp": -2, "status": "scared"}}, {"id": 5}],
		"log_append": [{"turn": 3, "events": ["p1: A", ""]}],
		"shari": {
			"assess": [{"player_id": "p1", "action": "hide", "plausible": "Uncertain", "reasons": ["rope"]}],
			"rolls": [{"player_id": "p1", "reason": "risky", "d6": 2}],
			"update": {
				"characterHurt": {"p1": true},
				"currentLocation": "cave",
				"previousLocation": "forest",
				"inventory": {"consumed": {"p1": ["rope"]}, "added": {"p2": ["gold", {"name": "herb", "charges": 2}, ""]}, "charges": {"p1": {"torch": -1}}},
				"skills": {"cooldown": {"p1": {"dash": 2}}}
			}
		}
	}`
	prior := testState()
	first := Normalize(prior, []byte(raw))

	encoded, err := json.Marshal(first)
	require.NoError(t, err)
	second := Normalize(prior, encoded)

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]string{"p1": "You shiver.", "p2": "12"}, first.Personal)
	assert.Equal(t, []string{"scared"}, first.Party[0].Changes.Status)
	assert.Equal(t, "5", first.Party[1].ID)
	assert.Equal(t, []Item{{Name: "gold"}, {Name: "herb", Charges: intp(2)}}, first.Shari.Update.Inventory.Added["p2"])
}

func TestNormalizeWorldDefaultsToPrior(t *testing.T) {
	prior := testState()
	prior.World.PrevLocation = "village"
	res := Normalize(prior, []byte(`{"world": "sunny"}`))
	require.NotNil(t, res.World.PrevLocation)
	assert.Equal(t, "village", *res.World.PrevLocation)
	assert.Equal(t, "night", *res.World.Time)
}

func TestNormalizeText(t *testing.T) {
	text := "Here you go:\n```json\n{\"narration\": \"hi\", \"turn\": 9}\n```\nEnjoy."
	res := NormalizeText(testState(), text)
	assert.Equal(t, "hi", res.Narration)
	assert.Equal(t, 9, res.Turn)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", "{}"},
		{"fenced", "x ```json\n {\"a\":1} \n``` y", `{"a":1}`},
		{"fenced array", "```json [1,2] ```", "[1,2]"},
		{"bare object", `prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{"bare array", `list: [1, 2, 3].`, `[1, 2, 3]`},
		{"plain text", "  no json here  ", "no json here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestMergeDoesNotMutatePrior(t *testing.T) {
	prior := testState()
	before, err := json.Marshal(prior)
	require.NoError(t, err)

	raw := `{
		"party": [{"id": "p1", "changes": {"hp": -3, "status": ["scared", "tired"]}}],
		"log_append": [{"turn": 3, "events": ["p1: A"]}],
		"shari": {"update": {
			"characterHurt": {"p1": true},
			"inventory": {"consumed": {"p1": ["rope"]}, "charges": {"p1": {"torch": -1, "light": -1}}},
			"skills": {"cooldown": {"p1": {"dash": 3}}}
		}}
	}`
	next := Merge(prior, Normalize(prior, []byte(raw)))

	after, err := json.Marshal(prior)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	assert.Equal(t, 4, next.Turn)
	p1 := next.Party[0].Sheet
	assert.Equal(t, 7, p1.HP)
	assert.Equal(t, []string{"tired", "scared"}, p1.Status)
	assert.Equal(t, []Item{{Name: "torch", Charges: intp(2)}}, p1.Items)
	assert.Equal(t, []Item{{Name: "light", Charges: intp(1)}}, p1.Spells)
	assert.Equal(t, 1, next.HurtCount["p1"])
	assert.Equal(t, 3, next.Cooldowns["p1"]["dash"])
	require.Len(t, next.Log, 1)
	assert.Equal(t, []string{"p1: A"}, next.Log[0].Events)
}

func TestMergeTurnIgnoresResultTurn(t *testing.T) {
	prior := testState()
	next := Merge(prior, Normalize(prior, []byte(`{"turn": 42}`)))
	assert.Equal(t, prior.Turn+1, next.Turn)
}

func TestMergeHurtCountAccumulates(t *testing.T) {
	st := testState()
	hurt := []byte(`{"shari": {"update": {"characterHurt": {"p1": true, "p2": false, "ghost": true}}}}`)
	st = Merge(st, Normalize(st, hurt))
	st = Merge(st, Normalize(st, hurt))
	assert.Equal(t, map[string]int{"p1": 2}, st.HurtCount)

	st = Merge(st, Normalize(st, []byte(`{"shari": {"update": {"characterHurt": {"p1": false}}}}`)))
	assert.Equal(t, 2, st.HurtCount["p1"])
}

func TestMergeLocation(t *testing.T) {
	prior := testState()
	next := Merge(prior, Normalize(prior, []byte(`{"shari": {"update": {"currentLocation": "cave", "previousLocation": "forest"}}}`)))
	assert.Equal(t, "cave", next.World.Location)
	assert.Equal(t, "forest", next.World.PrevLocation)

	// currentLocationが空なら位置は変わらない
	next = Merge(prior, Normalize(prior, []byte(`{"world": {}, "shari": {"update": {"currentLocation": ""}}}`)))
	assert.Equal(t, "forest", next.World.Location)
	assert.Equal(t, "", next.World.PrevLocation)

	// worldだけで移動した場合も既定のcurrentLocationに戻されない
	next = Merge(prior, Normalize(prior, []byte(`{"world": {"location": "ridge"}}`)))
	assert.Equal(t, "ridge", next.World.Location)
}

func TestMergeWorldPatch(t *testing.T) {
	prior := testState()
	next := Merge(prior, Normalize(prior, []byte(`{"world": {"time": "dawn"}}`)))
	assert.Equal(t, "dawn", next.World.Time)
	assert.Equal(t, "fog", next.World.Notes)
}

func TestMergeInventoryAddAndUnknownIDs(t *testing.T) {
	prior := testState()
	raw := `{
		"party": [{"id": "ghost", "changes": {"hp": -5}}],
		"shari": {"update": {
			"inventory": {
				"added": {"p2": ["gold", {"name": "herb", "charges": 2}], "ghost": ["map"]},
				"charges": {"p2": {"herb": 5, "missing": 1}}
			},
			"skills": {"cooldown": {"ghost": {"dash": 1}}}
		}}
	}`
	next := Merge(prior, Normalize(prior, []byte(raw)))

	// 追加されたあとに残数の増減が適用される
	assert.Equal(t, []Item{{Name: "gold"}, {Name: "herb", Charges: intp(7)}}, next.Party[1].Sheet.Items)
	assert.Equal(t, 10, next.Party[0].Sheet.HP)
	assert.Equal(t, 8, next.Party[1].Sheet.HP)
	_, ok := next.Cooldowns["ghost"]
	assert.False(t, ok)
}

func TestMergeChargesOnlyExistingEntries(t *testing.T) {
	prior := testState()
	next := Merge(prior, Normalize(prior, []byte(`{"shari": {"update": {"inventory": {"charges": {"p1": {"torch": 2, "sword": 1}}}}}}`)))
	items := next.Party[0].Sheet.Items
	require.Len(t, items, 2)
	assert.Equal(t, intp(5), items[1].Charges)
	assert.Equal(t, 3, *prior.Party[0].Sheet.Items[1].Charges)
}

func TestItemUnmarshalAcceptsString(t *testing.T) {
	var items []Item
	require.NoError(t, json.Unmarshal([]byte(`["rope", {"name": "torch", "charges": 2}]`), &items))
	assert.Equal(t, []Item{{Name: "rope"}, {Name: "torch", Charges: intp(2)}}, items)
}

func TestNewState(t *testing.T) {
	tmpl := scene.Template{Index: 2, ID: "scene2", Title: "Old well", Description: "damp"}
	chars := []Character{
		{ID: "c1", Name: "Haru", RoleID: "brother", Stats: map[string]int{"stamina": 4}, Skills: []string{"dash"}, Items: []Item{{Name: "rope"}}},
		{ID: "c2", Name: "Tiger"},
	}
	history := []HistoryEntry{{Role: "user", Content: "go"}, {Role: "assistant", Content: "You went."}}

	st := NewState("room-9", tmpl, chars, history)

	assert.Equal(t, "room-9", st.SessionID)
	assert.Equal(t, 2, st.Turn)
	assert.Equal(t, "scene2", st.Scenario.Title)
	assert.Equal(t, World{Time: "night", Location: "Old well", Notes: "damp"}, st.World)
	assert.Equal(t, []string{"c1", "c2"}, st.PartyIDs())
	assert.Equal(t, "Tiger", st.Party[1].Role)
	assert.Equal(t, []LogEntry{{Turn: 1, Narration: "You went."}}, st.Log)
	assert.Equal(t, 4, st.StatValue("brother", "stamina"))
	assert.Equal(t, 0, st.StatValue("nobody", "stamina"))

	m, ok := st.Member("c1")
	require.True(t, ok)
	assert.Equal(t, "Haru", m.Name)
	_, ok = st.Member("zz")
	assert.False(t, ok)
}

func TestNewStateDefaults(t *testing.T) {
	st := NewState("r", scene.Template{}, nil, nil)
	assert.Equal(t, "N/A", st.Scenario.Title)
	assert.Equal(t, "unknown location", st.World.Location)
	assert.NotNil(t, st.Party)
	assert.NotNil(t, st.HurtCount)
}

func TestChoicesMarshal(t *testing.T) {
	c := Choices{
		Actions: map[string]string{"p1": "Climb"},
		Rolls:   RollsHint(map[string]int{"p1": 4, "p2": 7, "p3": 0}),
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"p1": "Climb", "_rolls": {"p1": 4}}`, string(data))

	data, err = json.Marshal(Choices{Actions: map[string]string{"p1": "Wait"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p1": "Wait"}`, string(data))
}

func TestValidateChoices(t *testing.T) {
	st := testState()
	assert.NoError(t, ValidateChoices(st, map[string]string{"p1": "a", "p2": "b"}))

	err := ValidateChoices(st, map[string]string{"p1": "a", "zz": "b", "aa": "c"})
	var invalid *InvalidPlayerError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"aa", "zz"}, invalid.IDs)
}
