// Package refcode генерирует короткие реферальные коды для новых пользователей.
//
// Код состоит из 8 символов алфавита base32 (A–Z, 2–7) и строится из случайной
// части UUIDv4, поэтому не зависит от данных пользователя. Проверка уникальности
// остаётся на вызывающей стороне.
package refcode

import (
	"encoding/base32"

	"github.com/google/uuid"
)

// Length задаёт длину реферального кода.
const Length = 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator реализует генерацию кодов без состояния.
type Generator struct{}

// Generate возвращает новый реферальный код.
func (Generator) Generate() string {
	return Generate()
}

// Generate возвращает новый реферальный код.
//
// Первые 5 байт UUIDv4 полностью случайны и дают ровно 8 символов base32.
func Generate() string {
	id := uuid.New()
	return encoding.EncodeToString(id[:5])
}

// Valid проверяет, что строка похожа на реферальный код.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '2' || r > '7') {
			return false
		}
	}
	return true
}
