package password

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()-_=+[]{};:,.<>?"

	DefaultSuggestionLength = 12
	DefaultSuggestionCount  = 3
)

// Suggestion is a generated candidate with its strength score
type Suggestion struct {
	Password string   `json:"password"`
	Strength Strength `json:"strength"`
}

// Suggest generates count random passwords of the given length. Each is
// guaranteed one character from every required class; the remainder is drawn
// uniformly from the combined alphabet and the whole string shuffled so the
// required characters are not positionally predictable.
func Suggest(length, count int) ([]Suggestion, error) {
	if length < MinLength {
		length = DefaultSuggestionLength
	}
	if count <= 0 {
		count = DefaultSuggestionCount
	}

	suggestions := make([]Suggestion, count)
	for i := range suggestions {
		pw, err := generateOne(length)
		if err != nil {
			return nil, err
		}
		suggestions[i] = Suggestion{
			Password: pw,
			Strength: ValidateStrength(pw).Strength,
		}
	}
	return suggestions, nil
}

func generateOne(length int) (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, specialChars}
	combined := lowerChars + upperChars + digitChars + specialChars

	chars := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for len(chars) < length {
		c, err := randomChar(combined)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates with crypto/rand indices
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(alphabet string) (byte, error) {
	idx, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[idx], nil
}

func randomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid bound %d", n)
	}

	// Rejection sampling keeps the distribution uniform
	bound := uint64(n)
	limit := (^uint64(0) / bound) * bound
	buf := make([]byte, 8)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, fmt.Errorf("entropy source unavailable: %w", err)
		}
		v := binary.BigEndian.Uint64(buf)
		if v < limit {
			return int(v % bound), nil
		}
	}
}
