package domain

// EndingType tags a terminal scene.
type EndingType string

const (
	EndingGood   EndingType = "good"
	EndingBad    EndingType = "bad"
	EndingSecret EndingType = "secret"
)

// Valid reports whether the ending type is one of the known tags.
func (t EndingType) Valid() bool {
	switch t {
	case EndingGood, EndingBad, EndingSecret:
		return true
	}
	return false
}

// Story is the raw story definition returned by the content boundary.
// Field names are the storage format and must not change.
type Story struct {
	ID           string           `json:"id" yaml:"id" mapstructure:"id"`
	Title        string           `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`
	StartSceneID string           `json:"startSceneId" yaml:"startSceneId" mapstructure:"startSceneId"`
	Scenes       map[string]Scene `json:"scenes" yaml:"scenes" mapstructure:"scenes"`

	// TotalEndings is optional; when absent it is computed at load.
	TotalEndings *int `json:"totalEndings,omitempty" yaml:"totalEndings,omitempty" mapstructure:"totalEndings"`
}

// Scene is a node in the story graph.
// An ending scene has no choices; a decision scene has at least one.
type Scene struct {
	ID         string     `json:"id" yaml:"id" mapstructure:"id"`
	Title      string     `json:"title" yaml:"title" mapstructure:"title"`
	Text       string     `json:"text" yaml:"text" mapstructure:"text"`
	AudioRef   string     `json:"audioRef,omitempty" yaml:"audioRef,omitempty" mapstructure:"audioRef"`
	IsEnding   bool       `json:"isEnding" yaml:"isEnding" mapstructure:"isEnding"`
	EndingType EndingType `json:"endingType,omitempty" yaml:"endingType,omitempty" mapstructure:"endingType"`
	Choices    []Choice   `json:"choices" yaml:"choices" mapstructure:"choices"`
}

// Choice is an edge from one scene to another.
type Choice struct {
	ID              string `json:"id" yaml:"id" mapstructure:"id"`
	Text            string `json:"text" yaml:"text" mapstructure:"text"`
	NextSceneID     string `json:"nextSceneId" yaml:"nextSceneId" mapstructure:"nextSceneId"`
	ConsequenceHint string `json:"consequenceHint,omitempty" yaml:"consequenceHint,omitempty" mapstructure:"consequenceHint"`
}

// Choice returns the choice with the given id, if the scene offers it.
func (s *Scene) Choice(choiceID string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == choiceID {
			return c, true
		}
	}
	return Choice{}, false
}

// Clone returns a deep copy of the definition.
func (s *Story) Clone() *Story {
	c := *s
	if s.TotalEndings != nil {
		n := *s.TotalEndings
		c.TotalEndings = &n
	}
	if s.Scenes != nil {
		c.Scenes = make(map[string]Scene, len(s.Scenes))
		for id, scene := range s.Scenes {
			scene.Choices = append([]Choice(nil), scene.Choices...)
			c.Scenes[id] = scene
		}
	}
	return &c
}
