package amqp

import (
	"encoding/json"
	"errors"
	"strings"
)

// HeaderUserID names the message header addressing one user. Messages
// without it go to every connected user.
const HeaderUserID = "user_id"

var ErrEmptyNotification = errors.New("notification has neither title nor body")

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NotificationMessage is the push payload, shaped like a web-push message.
type NotificationMessage struct {
	Notification Notification `json:"notification"`
}

func NewNotificationMessage(title, body string) *NotificationMessage {
	return &NotificationMessage{Notification: Notification{Title: title, Body: body}}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes and checks a payload.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	n := &msg.Notification
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	if n.Title == "" && n.Body == "" {
		return nil, ErrEmptyNotification
	}
	return &msg, nil
}
