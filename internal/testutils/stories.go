package testutils

import "github.com/branchline/branchline/pkg/domain"

// BranchingStory returns the two-path story used across tests:
// scene_1 branches to scene_2 and scene_3, each leading to its own ending.
func BranchingStory() domain.Story {
	return domain.Story{
		ID:           "branching",
		Title:        "Two Roads",
		StartSceneID: "scene_1",
		Scenes: map[string]domain.Scene{
			"scene_1": {
				ID:       "scene_1",
				Title:    "The Fork",
				Text:     "The road splits.",
				AudioRef: "https://cdn.example.com/audio/fork.mp3",
				Choices: []domain.Choice{
					{ID: "left", Text: "Go left", NextSceneID: "scene_2"},
					{ID: "right", Text: "Go right", NextSceneID: "scene_3", ConsequenceHint: "It looks dark."},
				},
			},
			"scene_2": {
				ID:    "scene_2",
				Title: "Meadow",
				Text:  "Sunlight.",
				Choices: []domain.Choice{
					{ID: "rest", Text: "Rest", NextSceneID: "ending_good"},
				},
			},
			"scene_3": {
				ID:       "scene_3",
				Title:    "Cave",
				Text:     "Darkness.",
				AudioRef: "https://cdn.example.com/audio/cave.mp3",
				Choices: []domain.Choice{
					{ID: "enter", Text: "Enter", NextSceneID: "ending_bad"},
				},
			},
			"ending_good": {
				ID:         "ending_good",
				Title:      "Home",
				Text:       "You made it.",
				IsEnding:   true,
				EndingType: domain.EndingGood,
			},
			"ending_bad": {
				ID:         "ending_bad",
				Title:      "Lost",
				Text:       "You never return.",
				IsEnding:   true,
				EndingType: domain.EndingBad,
			},
		},
	}
}

// CyclicStory returns a story whose choices loop back to earlier scenes,
// including a self-loop, plus one dangling choice.
func CyclicStory() domain.Story {
	return domain.Story{
		ID:           "cyclic",
		StartSceneID: "hall",
		Scenes: map[string]domain.Scene{
			"hall": {
				Title: "Hall",
				Choices: []domain.Choice{
					{ID: "library", Text: "Library", NextSceneID: "library"},
					{ID: "wait", Text: "Wait", NextSceneID: "hall"},
					{ID: "void", Text: "Step into the void", NextSceneID: "nowhere"},
				},
			},
			"library": {
				Title: "Library",
				Choices: []domain.Choice{
					{ID: "back", Text: "Back", NextSceneID: "hall"},
					{ID: "secret", Text: "Pull the red book", NextSceneID: "ending_secret"},
				},
			},
			"ending_secret": {
				Title:      "Hidden Room",
				IsEnding:   true,
				EndingType: domain.EndingSecret,
			},
		},
	}
}
