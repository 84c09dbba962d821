// internal/models/store.go
package models

import (
	"fmt"
	"strings"
)

type StoreStatus string

const (
	StoreOpen   StoreStatus = "OPEN"
	StoreClosed StoreStatus = "CLOSED"
)

func (s StoreStatus) Valid() bool {
	return s == StoreOpen || s == StoreClosed
}

func ParseStoreStatus(raw string) (StoreStatus, error) {
	s := StoreStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid store status %q", raw)
	}
	return s, nil
}

// Store is a retail location that needs an audit.
type Store struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	LocationLat float64     `json:"locationLat"`
	LocationLon float64     `json:"locationLon"`
	StoreStatus StoreStatus `json:"storeStatus"`
}

func (s Store) IsOpen() bool {
	return s.StoreStatus == StoreOpen
}
