package domain

import "time"

// StoredMessage is a researcher message kept until the participant views it.
type StoredMessage struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ReceivedOn time.Time `json:"received_on"`
}
