package store

import (
	"github.com/bytedance/sonic"
)

// Serializer encodes values stored in badger
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// SonicSerializer implements Serializer using ByteDance Sonic JSON library
type SonicSerializer struct {
	api sonic.API
}

// NewSonicSerializer creates a new Sonic-based serializer
func NewSonicSerializer() *SonicSerializer {
	return &SonicSerializer{
		api: sonic.ConfigStd,
	}
}

// Serialize converts a value to bytes using Sonic JSON
func (s *SonicSerializer) Serialize(v interface{}) ([]byte, error) {
	return s.api.Marshal(v)
}

// Deserialize converts bytes back to a value using Sonic JSON
func (s *SonicSerializer) Deserialize(data []byte, v interface{}) error {
	return s.api.Unmarshal(data, v)
}
