package models

import (
	"time"
)

type Click struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Location  string    `json:"location"`
}

// Visit данные запроса, из которых строится клик
type Visit struct {
	Referrer string
}
