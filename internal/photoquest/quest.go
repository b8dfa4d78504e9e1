// Package photoquest defines the core domain types of a city photo
// scavenger hunt: points of interest, quest configuration, generated
// quests with their tasks, and photo verdicts.
package photoquest

import (
	"math"
	"strings"
)

// PointOfInterest is a named, geolocated place usable as a task location.
type PointOfInterest struct {
	ID       int64   `json:"id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Name     string  `json:"name"`
	Category string  `json:"type"`
}

// Valid reports whether the POI has a name and usable coordinates.
func (p PointOfInterest) Valid() bool {
	return strings.TrimSpace(p.Name) != "" && ValidCoordinates(p.Lat, p.Lon)
}

// ValidCoordinates reports whether lat/lon are finite and within range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

type QuestTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Narrative   string `json:"narrative,omitempty"`
	Instruction string `json:"instruction,omitempty"`
	Description string `json:"description"`
	Hint        string `json:"hint"`
	Location    string `json:"location"`
	Points      int    `json:"points"`
	Completed   bool   `json:"isCompleted"`
	Attempts    int    `json:"attempts"`
	PhotoRef    string `json:"photoRef,omitempty"`
}

// Action is the literal thing the player has to photograph. Older quest
// documents only carry a combined description.
func (t QuestTask) Action() string {
	if t.Instruction != "" {
		return t.Instruction
	}
	return t.Description
}

// Story is the scene-setting text shown above the action.
func (t QuestTask) Story() string {
	if t.Narrative != "" {
		return t.Narrative
	}
	if t.Instruction == "" {
		return t.Description
	}
	return ""
}

func (t QuestTask) Displayable() bool {
	return strings.TrimSpace(t.Instruction) != "" || strings.TrimSpace(t.Description) != ""
}

// GeneratedQuest is an ordered sequence of tasks bound to a city. Task
// order is play order.
type GeneratedQuest struct {
	ID    string      `json:"id"`
	City  string      `json:"city"`
	Theme string      `json:"theme"`
	Intro string      `json:"intro,omitempty"`
	Tasks []QuestTask `json:"tasks"`
}

// TaskIndex returns the position of the task with the given id, or -1.
func (q *GeneratedQuest) TaskIndex(id string) int {
	for i := range q.Tasks {
		if q.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// CompletedPoints sums the points of every completed task.
func (q *GeneratedQuest) CompletedPoints() int {
	total := 0
	for _, t := range q.Tasks {
		if t.Completed {
			total += t.Points
		}
	}
	return total
}

func (q *GeneratedQuest) TotalPoints() int {
	total := 0
	for _, t := range q.Tasks {
		total += t.Points
	}
	return total
}

// Clone returns a deep copy safe to hand to readers.
func (q *GeneratedQuest) Clone() *GeneratedQuest {
	if q == nil {
		return nil
	}
	c := *q
	c.Tasks = make([]QuestTask, len(q.Tasks))
	copy(c.Tasks, q.Tasks)
	return &c
}

// Verdict is the outcome of submitting a photo for a task.
type Verdict struct {
	Success  bool    `json:"success"`
	Feedback string  `json:"feedback"`
	Hint     *string `json:"hint"`
}
