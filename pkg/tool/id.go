package tool

import "github.com/google/uuid"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateChatMessageID is used when the generation API does not return a message id.
func GenerateChatMessageID() string {
	return "msg_" + uuid.NewString()
}
