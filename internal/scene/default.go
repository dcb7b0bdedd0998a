package scene

// DefaultCatalog は組み込みの短いシナリオ(兄妹と虎の山道)を返します。
// シーン0はターン制、シーン1はラウンド制。
func DefaultCatalog() StaticCatalog {
	roleMap := map[string]string{
		"Brother": "brother",
		"Sister":  "sister",
		"Tiger":   "tiger",
		"Goddess": "goddess",
	}
	return StaticCatalog{
		0: {
			Index:   0,
			ID:      "scene0",
			Title:   "Mountain path at nightfall",
			RoleMap: roleMap,
			Turns: []Turn{
				{Role: "brother", Choices: []Choice{
					{ID: "A", Text: "Sprint down the mountain path", AppliedStat: "stamina", Modifier: 0},
					{ID: "B", Text: "Hide behind a boulder", AppliedStat: "wisdom", Modifier: 1},
				}},
				{Role: "sister", Choices: []Choice{
					{ID: "C", Text: "Quietly erase the footprints", AppliedStat: "wisdom", Modifier: 0},
					{ID: "D", Text: "Signal to her brother", AppliedStat: "wisdom", Modifier: 1},
				}},
				{Role: "tiger", Choices: []Choice{
					{ID: "H", Text: "Follow the scent", AppliedStat: "luck", Modifier: 0},
					{ID: "J", Text: "Roar to intimidate", AppliedStat: "wisdom", Modifier: -1},
				}},
				{Role: "goddess", Choices: []Choice{
					{ID: "V", Text: "Locate the children", AppliedStat: "wisdom", Modifier: 2},
					{ID: "W", Text: "Raise a miracle against the tiger", AppliedStat: "luck", Modifier: 2},
				}},
			},
		},
		1: {
			Index:   1,
			ID:      "scene1",
			Title:   "Breathless chase",
			RoleMap: roleMap,
			Choices: map[string][]Choice{
				"brother": {
					{ID: "E", Text: "Climb a tree", AppliedStat: "stamina", Modifier: 0},
					{ID: "F", Text: "Throw a stone at the tiger", AppliedStat: "luck", Modifier: 0},
				},
				"sister": {
					{ID: "G", Text: "Pull her brother up the tree", AppliedStat: "stamina", Modifier: 1},
					{ID: "K", Text: "Pray to the sky", AppliedStat: "luck", Modifier: 0},
				},
				"tiger": {
					{ID: "L", Text: "Shake the tree", AppliedStat: "stamina", Modifier: 1},
					{ID: "M", Text: "Pretend to leave", AppliedStat: "wisdom", Modifier: 0},
				},
				"goddess": {
					{ID: "X", Text: "Lower a rope from the sky", AppliedStat: "luck", Modifier: 1},
					{ID: "Y", Text: "Send a gust of wind", AppliedStat: "wisdom", Modifier: 0},
				},
			},
		},
	}
}
