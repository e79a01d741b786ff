package models

import (
	"time"
)

// Link хранимая запись короткой ссылки. Имена JSON-полей совпадают с
// сохранённым форматом маппинга, менять их нельзя.
type Link struct {
	LongURL string    `json:"longUrl"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
	Clicks  []Click   `json:"clicks"`
}

// IsExpired истекает строго после момента expires
func (l *Link) IsExpired(now time.Time) bool {
	return now.After(l.Expires)
}

// Mapping весь маппинг короткий код -> запись, читается и пишется целиком
type Mapping map[string]*Link

// ShortenEntry одна строка формы создания
type ShortenEntry struct {
	URL      string
	Validity string // сырое значение, число минут
	Code     string // пустой код значит автогенерацию
}

// ShortenResult результат обработки одной строки; заполнено либо Error,
// либо остальные поля
type ShortenResult struct {
	Code    string     `json:"code,omitempty"`
	LongURL string     `json:"longUrl,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// OK сообщает, была ли строка сохранена
func (r ShortenResult) OK() bool {
	return r.Error == ""
}

// LinkInfo запись вместе с состоянием на момент запроса
type LinkInfo struct {
	Code    string
	Link    *Link
	Expired bool
}
