package service

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCodeLength длина автоматически сгенерированного кода
const DefaultCodeLength = 6

const maxValidityMinutes = 365 * 24 * 60

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
}

// NewCodeGenerator возвращает генератор кодов заданной длины из случайного
// UUID v4. Длина ограничена 32 hex-символами UUID.
func NewCodeGenerator(length int) func() (string, error) {
	if length <= 0 || length > 32 {
		length = DefaultCodeLength
	}
	return func() (string, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate uuid: %w", err)
		}
		return strings.ReplaceAll(id.String(), "-", "")[:length], nil
	}
}

// validateURL принимает только абсолютный URL с известной схемой и хостом
func validateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if !u.IsAbs() || !allowedSchemes[u.Scheme] || u.Hostname() == "" {
		return ErrInvalidURL
	}

	return nil
}

// ParseValidity читает число минут по ведущим цифрам ("15", "15min", "1.5").
// Пустое, нечисловое или нулевое значение даёт def, слишком большое
// обрезается до года. Отрицательное ("-5") тоже даёт def, а не уже
// истёкшую ссылку: знак минуса не считается цифрой.
func ParseValidity(raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return def
	}

	minutes, err := strconv.Atoi(s[:end])
	if err != nil || minutes > maxValidityMinutes {
		return maxValidityMinutes * time.Minute
	}
	if minutes == 0 {
		return def
	}

	return time.Duration(minutes) * time.Minute
}
