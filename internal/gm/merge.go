package gm

// Merge はGM応答を反映した次のターンの状態を返します。
// priorは変更されません。パーティーにいないIDへの変更は無視します。
func Merge(prior State, res Result) State {
	next := prior.Clone()

	// 1) 世界・ログ・ターン
	res.World.apply(&next.World)
	for _, e := range res.LogAppend {
		next.Log = append(next.Log, LogEntry{
			Turn:      e.Turn,
			Narration: e.Narration,
			Events:    append([]string(nil), e.Events...),
		})
	}
	next.Turn = prior.Turn + 1

	index := next.partyIndex()

	// 2) パーティーの変化 (HPは増減、statusは和集合)
	for _, ch := range res.Party {
		i, ok := index[ch.ID]
		if !ok {
			continue
		}
		sheet := &next.Party[i].Sheet
		sheet.HP += ch.Changes.HP
		sheet.Status = union(sheet.Status, ch.Changes.Status)
	}

	upd := res.Shari.Update

	// 3) 位置の移動。前の位置と同じ値はworldの変更を打ち消さない
	if upd.CurrentLocation != "" && upd.CurrentLocation != prior.World.Location {
		next.World.Location = upd.CurrentLocation
	}
	if upd.PreviousLocation != nil {
		next.World.PrevLocation = *upd.PreviousLocation
	}

	// 4) 負傷の累積。減ることはない
	for pid, hurt := range upd.CharacterHurt {
		if _, ok := index[pid]; ok && hurt {
			next.HurtCount[pid]++
		}
	}

	// 5) インベントリ
	for pid, names := range upd.Inventory.Consumed {
		i, ok := index[pid]
		if !ok {
			continue
		}
		drop := make(map[string]bool, len(names))
		for _, n := range names {
			drop[n] = true
		}
		sheet := &next.Party[i].Sheet
		sheet.Items = without(sheet.Items, drop)
		sheet.Spells = without(sheet.Spells, drop)
	}
	for pid, items := range upd.Inventory.Added {
		i, ok := index[pid]
		if !ok {
			continue
		}
		sheet := &next.Party[i].Sheet
		for _, it := range items {
			sheet.Items = append(sheet.Items, it.clone())
		}
	}
	for pid, deltas := range upd.Inventory.Charges {
		i, ok := index[pid]
		if !ok {
			continue
		}
		sheet := &next.Party[i].Sheet
		applyCharges(sheet.Items, deltas)
		applyCharges(sheet.Spells, deltas)
	}

	// 6) スキルのクールダウンは上書き
	for pid, skills := range upd.Skills.Cooldown {
		if _, ok := index[pid]; !ok {
			continue
		}
		bucket, ok := next.Cooldowns[pid]
		if !ok {
			bucket = make(map[string]int)
			next.Cooldowns[pid] = bucket
		}
		for name, turns := range skills {
			bucket[name] = turns
		}
	}

	return next
}

func (p WorldPatch) apply(w *World) {
	if p.Time != nil {
		w.Time = *p.Time
	}
	if p.Location != nil {
		w.Location = *p.Location
	}
	if p.PrevLocation != nil {
		w.PrevLocation = *p.PrevLocation
	}
	if p.Notes != nil {
		w.Notes = *p.Notes
	}
}

func union(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, s := range append(append([]string(nil), have...), add...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func without(items []Item, drop map[string]bool) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !drop[it.Name] {
			out = append(out, it)
		}
	}
	return out
}

// applyCharges は名前が一致する既存エントリにだけ増減を適用します。
func applyCharges(items []Item, deltas map[string]int) {
	for i := range items {
		d, ok := deltas[items[i].Name]
		if !ok {
			continue
		}
		n := d
		if items[i].Charges != nil {
			n += *items[i].Charges
		}
		items[i].Charges = &n
	}
}
