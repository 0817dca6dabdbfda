package utils

import (
	"github.com/lithammer/shortuuid/v3"
)

const (
	APIKeyPrefix      = "API"
	IngressPrefix     = "IN_"
	RoomPrefix        = "RM_"
	ParticipantPrefix = "PA_"
	StreamKeyPrefix   = "SK_"
)

func NewGuid(prefix string) string {
	return prefix + shortuuid.New()
}
