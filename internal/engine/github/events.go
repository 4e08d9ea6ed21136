package github

import (
	"encoding/json"
	"errors"
)

// Event types accepted at the ingestion boundary. Anything else is
// acknowledged and ignored.
const (
	EventTypePing                      = "ping"
	EventTypePullRequest               = "pull_request"
	EventTypeIssues                    = "issues"
	EventTypeInstallation              = "installation"
	EventTypeInstallationRepositories  = "installation_repositories"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is the closed set of decoded webhook payloads. The raw body is
// parsed exactly once here; downstream handlers switch on the concrete
// variant.
type Event interface {
	Type() string
}

type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type Issue struct {
	ID     int64  `json:"id"`
	Number int64  `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

type PullRequest struct {
	ID      int64  `json:"id"`
	Number  int64  `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Merged  bool   `json:"merged"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
}

type Installation struct {
	ID      int64 `json:"id"`
	Account struct {
		Login string `json:"login"`
	} `json:"account"`
}

type PingEvent struct {
	Zen        string     `json:"zen"`
	Repository Repository `json:"repository"`
}

func (PingEvent) Type() string { return EventTypePing }

type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int64       `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
}

func (PullRequestEvent) Type() string { return EventTypePullRequest }

type IssuesEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Repository Repository `json:"repository"`
}

func (IssuesEvent) Type() string { return EventTypeIssues }

type InstallationEvent struct {
	Action       string       `json:"action"`
	Installation Installation `json:"installation"`
	Repositories []Repository `json:"repositories"`
}

func (InstallationEvent) Type() string { return EventTypeInstallation }

type InstallationRepositoriesEvent struct {
	Action              string       `json:"action"`
	Installation        Installation `json:"installation"`
	RepositoriesAdded   []Repository `json:"repositories_added"`
	RepositoriesRemoved []Repository `json:"repositories_removed"`
}

func (InstallationRepositoriesEvent) Type() string { return EventTypeInstallationRepositories }

// Decode parses a raw webhook body into its event variant, selected by
// the event-type header. Returns ErrUnknownEventType for types outside
// the closed set.
func Decode(eventType string, body []byte) (Event, error) {
	switch eventType {
	case EventTypePing:
		var ev PingEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTypePullRequest:
		var ev PullRequestEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTypeIssues:
		var ev IssuesEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTypeInstallation:
		var ev InstallationEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTypeInstallationRepositories:
		var ev InstallationRepositoriesEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, ErrUnknownEventType
	}
}

// InstallationScoped reports whether an event type is verified with
// the application-level secret instead of a per-repository secret.
func InstallationScoped(eventType string) bool {
	return eventType == EventTypeInstallation || eventType == EventTypeInstallationRepositories
}
