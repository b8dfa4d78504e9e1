package session

// Event types published on every transition.
const (
	EventQuestLoading      = "quest_loading"
	EventQuestCreated      = "quest_created"
	EventQuestFailed       = "quest_failed"
	EventTaskCompleted     = "task_completed"
	EventTaskAttemptFailed = "task_attempt_failed"
	EventVerificationError = "verification_error"
	EventTaskAdvanced      = "task_advanced"
	EventQuestCompleted    = "quest_completed"
	EventQuestReset        = "quest_reset"
)

type Event struct {
	Type             string `json:"type"`
	Status           Status `json:"status"`
	TaskID           string `json:"taskId,omitempty"`
	CurrentTaskIndex int    `json:"currentTaskIndex"`
	Score            int    `json:"score"`
	Progress         int    `json:"progress"`
	Message          string `json:"message,omitempty"`
}
