package photoquest

import (
	"fmt"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

type PlayersFormat string

const (
	FormatSolo       PlayersFormat = "solo"
	FormatCouple     PlayersFormat = "couple"
	FormatSmallGroup PlayersFormat = "small_group"
	FormatFamily     PlayersFormat = "family"
	FormatCorporate  PlayersFormat = "corporate"
	FormatTeens      PlayersFormat = "teens"
)

func (f PlayersFormat) Valid() bool {
	switch f {
	case FormatSolo, FormatCouple, FormatSmallGroup, FormatFamily, FormatCorporate, FormatTeens:
		return true
	}
	return false
}

type Audience string

const (
	AudienceTourist    Audience = "tourist"
	AudienceLocal      Audience = "local"
	AudienceCouple     Audience = "couple"
	AudienceFamily     Audience = "family"
	AudienceFriends    Audience = "friends"
	AudienceColleagues Audience = "colleagues"
	AudienceTeens      Audience = "teens"
	AudienceUniversal  Audience = "universal"
)

func (a Audience) Valid() bool {
	switch a {
	case AudienceTourist, AudienceLocal, AudienceCouple, AudienceFamily,
		AudienceFriends, AudienceColleagues, AudienceTeens, AudienceUniversal:
		return true
	}
	return false
}

type Genre string

const (
	GenreDetective Genre = "detective"
	GenreHistory   Genre = "history"
	GenreAdventure Genre = "adventure"
	GenreMystery   Genre = "mystery"
	GenreCrime     Genre = "crime"
	GenreRomance   Genre = "romance"
	GenreFantasy   Genre = "fantasy"
	GenreThriller  Genre = "thriller"
	GenreComedy    Genre = "comedy"
	GenrePostApoc  Genre = "postapoc"
)

func (g Genre) Valid() bool {
	switch g {
	case GenreDetective, GenreHistory, GenreAdventure, GenreMystery, GenreCrime,
		GenreRomance, GenreFantasy, GenreThriller, GenreComedy, GenrePostApoc:
		return true
	}
	return false
}

type Linearity string

const (
	LinearityLinear    Linearity = "linear"
	LinearityBranching Linearity = "branching"
	LinearityOpen      Linearity = "open"
)

func (l Linearity) Valid() bool {
	switch l {
	case LinearityLinear, LinearityBranching, LinearityOpen:
		return true
	}
	return false
}

// Language is the output language of the generated quest text.
type Language string

const (
	LanguageRU Language = "ru"
	LanguageDE Language = "de"
	LanguageEN Language = "en"
	LanguageUK Language = "uk"
)

func (l Language) Valid() bool {
	switch l {
	case LanguageRU, LanguageDE, LanguageEN, LanguageUK:
		return true
	}
	return false
}

// Name returns the English name of the language, as used in prompts.
func (l Language) Name() string {
	switch l {
	case LanguageEN:
		return "English"
	case LanguageDE:
		return "German"
	case LanguageUK:
		return "Ukrainian"
	default:
		return "Russian"
	}
}

// DefaultRadius is the POI search radius in meters.
const DefaultRadius = 800

const (
	minTasks        = 3
	maxTasks        = 7
	minutesPerTask  = 20
	defaultDuration = 60
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// QuestConfiguration holds the parameters chosen on the setup screen
// before a quest is generated.
type QuestConfiguration struct {
	City          string        `json:"city"`
	Lat           float64       `json:"lat"`
	Lon           float64       `json:"lon"`
	Radius        float64       `json:"radius"`
	UserLocation  *Coordinates  `json:"userLocation,omitempty"`
	Duration      int           `json:"duration"`
	Difficulty    Difficulty    `json:"difficulty"`
	PlayersFormat PlayersFormat `json:"playersFormat"`
	Audience      Audience      `json:"audience"`
	Genre         Genre         `json:"genre"`
	Atmosphere    []string      `json:"atmosphere"`
	TaskTypes     []string      `json:"taskTypes"`
	Linearity     Linearity     `json:"linearity"`
	Language      Language      `json:"language"`
}

func DefaultConfiguration() QuestConfiguration {
	return QuestConfiguration{
		Radius:        DefaultRadius,
		Duration:      defaultDuration,
		Difficulty:    DifficultyMedium,
		PlayersFormat: FormatCouple,
		Audience:      AudienceTourist,
		Genre:         GenreHistory,
		Atmosphere:    []string{},
		TaskTypes:     []string{},
		Linearity:     LinearityLinear,
		Language:      LanguageRU,
	}
}

// SetCity replaces the city and drops any GPS fix, which belonged to
// wherever the user was standing rather than to the chosen city.
func (c *QuestConfiguration) SetCity(name string) {
	c.City = strings.TrimSpace(name)
	c.UserLocation = nil
}

func (c *QuestConfiguration) SetCoordinates(lat, lon float64) error {
	if !ValidCoordinates(lat, lon) {
		return fmt.Errorf("%w: coordinates out of range (%v, %v)", ErrInvalidConfig, lat, lon)
	}
	c.Lat, c.Lon = lat, lon
	return nil
}

func (c *QuestConfiguration) SetUserLocation(lat, lon float64) error {
	if !ValidCoordinates(lat, lon) {
		return fmt.Errorf("%w: user location out of range (%v, %v)", ErrInvalidConfig, lat, lon)
	}
	c.UserLocation = &Coordinates{Lat: lat, Lon: lon}
	return nil
}

func (c *QuestConfiguration) SetRadius(meters float64) error {
	if !(meters > 0) {
		return fmt.Errorf("%w: radius must be positive", ErrInvalidConfig)
	}
	c.Radius = meters
	return nil
}

func (c *QuestConfiguration) SetDuration(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}
	c.Duration = minutes
	return nil
}

type template struct {
	genre      Genre
	audience   Audience
	atmosphere []string
}

var templates = map[string]template{
	"romantic":       {GenreRomance, AudienceCouple, []string{"romantic", "mysterious"}},
	"family":         {GenreAdventure, AudienceFamily, []string{"playful", "cheerful"}},
	"detective":      {GenreDetective, AudienceFriends, []string{"noir", "mysterious"}},
	"history_walk":   {GenreHistory, AudienceTourist, []string{"educational", "nostalgic"}},
	"teen_adventure": {GenreAdventure, AudienceTeens, []string{"energetic", "competitive"}},
}

// ApplyTemplate overwrites genre, audience and atmosphere from a named
// preset. It reports false and changes nothing for unknown names.
func (c *QuestConfiguration) ApplyTemplate(name string) bool {
	t, ok := templates[name]
	if !ok {
		return false
	}
	c.Genre = t.genre
	c.Audience = t.audience
	c.Atmosphere = append([]string(nil), t.atmosphere...)
	return true
}

// Preview is the one-line teaser shown while the user tweaks parameters.
func (c QuestConfiguration) Preview() string {
	city := c.City
	if city == "" {
		city = "Unknown City"
	}
	return fmt.Sprintf("An immersive %d-minute %s experience in %s designed for a %s. Explore hidden gems and solve photo-mysteries.",
		c.Duration, c.Genre, city, c.Audience)
}

// TaskCount is the expected number of stops for the configured duration.
func (c QuestConfiguration) TaskCount() int {
	return TaskCountFor(c.Duration)
}

func TaskCountFor(duration int) int {
	return min(max(duration/minutesPerTask, minTasks), maxTasks)
}

// SearchPoint is where POIs are looked up: the user's own position when
// known, the chosen city otherwise.
func (c QuestConfiguration) SearchPoint() (lat, lon float64) {
	if c.UserLocation != nil {
		return c.UserLocation.Lat, c.UserLocation.Lon
	}
	return c.Lat, c.Lon
}

// Normalize trims the city and deduplicates the tag sets in place.
func (c *QuestConfiguration) Normalize() {
	c.City = strings.TrimSpace(c.City)
	c.Atmosphere = normalizeTags(c.Atmosphere)
	c.TaskTypes = normalizeTags(c.TaskTypes)
	if c.Radius == 0 {
		c.Radius = DefaultRadius
	}
}

func (c QuestConfiguration) Validate() error {
	switch {
	case c.City == "":
		return fmt.Errorf("%w: city is required", ErrInvalidConfig)
	case !(c.Radius > 0):
		return fmt.Errorf("%w: radius must be positive", ErrInvalidConfig)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	case !ValidCoordinates(c.Lat, c.Lon):
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidConfig)
	case c.UserLocation != nil && !ValidCoordinates(c.UserLocation.Lat, c.UserLocation.Lon):
		return fmt.Errorf("%w: user location out of range", ErrInvalidConfig)
	case !c.Difficulty.Valid():
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidConfig, c.Difficulty)
	case !c.PlayersFormat.Valid():
		return fmt.Errorf("%w: unknown players format %q", ErrInvalidConfig, c.PlayersFormat)
	case !c.Audience.Valid():
		return fmt.Errorf("%w: unknown audience %q", ErrInvalidConfig, c.Audience)
	case !c.Genre.Valid():
		return fmt.Errorf("%w: unknown genre %q", ErrInvalidConfig, c.Genre)
	case !c.Linearity.Valid():
		return fmt.Errorf("%w: unknown linearity %q", ErrInvalidConfig, c.Linearity)
	case !c.Language.Valid():
		return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, c.Language)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
