package models

// Action
const (
	StartAction = "start"
	StopAction  = "stop"
)

// Command is a control message for the scraper service.
type Command struct {
	Action string      `json:"action"`
	Data   CommandData `json:"data,omitempty"`
}

// CommandData carries the parameters for a start command.
type CommandData struct {
	ChannelURL  string `json:"channel_url"`
	PageLimit   int    `json:"page_limit"`
	Concurrency int    `json:"concurrency"`
}
