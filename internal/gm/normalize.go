package gm

import (
	"github.com/tidwall/gjson"
)

// Normalize は生のGM応答を正規化します。失敗はしません。
// 不正なJSONや型違いの値はすべて既定値になります。
func Normalize(prior State, raw []byte) Result {
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		root = gjson.Result{}
	}
	known := prior.partySet()

	res := Result{
		Turn:      prior.Turn + 1,
		Narration: stringOr(root.Get("narration"), ""),
		Personal:  make(map[string]string),
		Party:     []PartyChange{},
		LogAppend: []LogEntry{},
	}
	if t := root.Get("turn"); t.Type == gjson.Number {
		res.Turn = int(t.Int())
	}

	if p := root.Get("personal"); p.IsObject() {
		p.ForEach(func(k, v gjson.Result) bool {
			if known[k.String()] {
				res.Personal[k.String()] = stringOr(v, "")
			}
			return true
		})
	}
	for _, id := range prior.PartyIDs() {
		if _, ok := res.Personal[id]; !ok {
			res.Personal[id] = ""
		}
	}

	res.World = normalizeWorld(root.Get("world"), prior.World)

	for _, p := range objects(root.Get("party")) {
		ch := p.Get("changes")
		res.Party = append(res.Party, PartyChange{
			ID: stringOr(p.Get("id"), ""),
			Changes: Changes{
				HP:     intOr(ch.Get("hp"), 0),
				Status: stringList(ch.Get("status")),
			},
		})
	}

	for _, e := range objects(root.Get("log_append")) {
		res.LogAppend = append(res.LogAppend, LogEntry{
			Turn:      intOr(e.Get("turn"), prior.Turn),
			Narration: stringOr(e.Get("narration"), ""),
			Events:    stringList(e.Get("events")),
		})
	}

	res.Shari = normalizeShari(root.Get("shari"), prior, known)
	return res
}

// NormalizeText extracts the JSON payload from free text before normalizing.
func NormalizeText(prior State, text string) Result {
	return Normalize(prior, []byte(ExtractJSON(text)))
}

func normalizeWorld(w gjson.Result, prior World) WorldPatch {
	if !w.IsObject() {
		return WorldPatch{
			Time:         strPtr(prior.Time),
			Location:     strPtr(prior.Location),
			PrevLocation: optionalPtr(prior.PrevLocation),
			Notes:        strPtr(prior.Notes),
		}
	}
	return WorldPatch{
		Time:         stringPtr(w.Get("time")),
		Location:     stringPtr(w.Get("location")),
		PrevLocation: stringPtr(w.Get("prev_location")),
		Notes:        stringPtr(w.Get("notes")),
	}
}

func normalizeShari(s gjson.Result, prior State, known map[string]bool) Shari {
	sh := Shari{Assess: []Assess{}, Rolls: []Roll{}}

	// player_idが空、またはパーティーに存在するものだけ残す
	keep := func(item gjson.Result) (string, bool) {
		pid := stringOr(item.Get("player_id"), "")
		return pid, pid == "" || known[pid]
	}
	for _, a := range objects(s.Get("assess")) {
		pid, ok := keep(a)
		if !ok {
			continue
		}
		sh.Assess = append(sh.Assess, Assess{
			PlayerID:    pid,
			Action:      stringOr(a.Get("action"), ""),
			Move:        a.Get("move").Bool(),
			Destination: stringPtr(a.Get("destination")),
			Dangerous:   a.Get("dangerous").Bool(),
			Plausible:   stringOr(a.Get("plausible"), ""),
			Win:         a.Get("win").Bool(),
			Reasons:     stringList(a.Get("reasons")),
		})
	}
	for _, r := range objects(s.Get("rolls")) {
		pid, ok := keep(r)
		if !ok {
			continue
		}
		sh.Rolls = append(sh.Rolls, Roll{
			PlayerID: pid,
			Reason:   stringOr(r.Get("reason"), ""),
			D6:       intOr(r.Get("d6"), 0),
			Outcome:  stringOr(r.Get("outcome"), ""),
		})
	}

	u := s.Get("update")
	sh.Update = Update{
		CharacterHurt:    make(map[string]bool),
		CurrentLocation:  prior.World.Location,
		PreviousLocation: stringPtr(u.Get("previousLocation")),
		Notes:            stringOr(u.Get("notes"), ""),
		Inventory: Inventory{
			Consumed: make(map[string][]string),
			Added:    make(map[string][]Item),
			Charges:  make(map[string]map[string]int),
		},
		Skills: Skills{Cooldown: make(map[string]map[string]int)},
	}
	if cur := u.Get("currentLocation"); cur.Type == gjson.String {
		sh.Update.CurrentLocation = cur.Str
	}
	eachObject(u.Get("characterHurt"), func(pid string, v gjson.Result) {
		sh.Update.CharacterHurt[pid] = v.Bool()
	})

	inv := u.Get("inventory")
	eachObject(inv.Get("consumed"), func(pid string, v gjson.Result) {
		sh.Update.Inventory.Consumed[pid] = stringList(v)
	})
	eachObject(inv.Get("added"), func(pid string, v gjson.Result) {
		sh.Update.Inventory.Added[pid] = itemList(v)
	})
	eachObject(inv.Get("charges"), func(pid string, v gjson.Result) {
		sh.Update.Inventory.Charges[pid] = intMap(v)
	})
	eachObject(u.Get("skills").Get("cooldown"), func(pid string, v gjson.Result) {
		sh.Update.Skills.Cooldown[pid] = intMap(v)
	})
	return sh
}

func stringOr(r gjson.Result, def string) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number, gjson.True, gjson.False:
		return r.Raw
	}
	return def
}

func stringPtr(r gjson.Result) *string {
	if r.Type != gjson.String {
		return nil
	}
	return strPtr(r.Str)
}

func strPtr(s string) *string {
	return &s
}

func optionalPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intOr(r gjson.Result, def int) int {
	if r.Type != gjson.Number {
		return def
	}
	return int(r.Int())
}

func objects(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	var out []gjson.Result
	for _, v := range r.Array() {
		if v.IsObject() {
			out = append(out, v)
		}
	}
	return out
}

func eachObject(r gjson.Result, fn func(key string, v gjson.Result)) {
	if !r.IsObject() {
		return
	}
	r.ForEach(func(k, v gjson.Result) bool {
		fn(k.String(), v)
		return true
	})
}

// stringList は配列なら文字列要素を、単一の文字列なら1要素のリストを返します。
func stringList(r gjson.Result) []string {
	out := []string{}
	if r.Type == gjson.String {
		if r.Str != "" {
			out = append(out, r.Str)
		}
		return out
	}
	if !r.IsArray() {
		return out
	}
	for _, v := range r.Array() {
		if s := stringOr(v, ""); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func itemList(r gjson.Result) []Item {
	out := []Item{}
	if !r.IsArray() {
		return out
	}
	for _, v := range r.Array() {
		switch {
		case v.Type == gjson.String && v.Str != "":
			out = append(out, Item{Name: v.Str})
		case v.IsObject():
			name := stringOr(v.Get("name"), "")
			if name == "" {
				continue
			}
			it := Item{Name: name}
			if c := v.Get("charges"); c.Type == gjson.Number {
				n := int(c.Int())
				it.Charges = &n
			}
			out = append(out, it)
		}
	}
	return out
}

func intMap(r gjson.Result) map[string]int {
	out := make(map[string]int)
	eachObject(r, func(k string, v gjson.Result) {
		if v.Type == gjson.Number {
			out[k] = int(v.Int())
		}
	})
	return out
}
