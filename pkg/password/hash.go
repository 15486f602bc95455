package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost follows the OWASP recommendation for interactive logins
const BcryptCost = 12

// Hash returns the bcrypt hash of a password for storage
func Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether a plaintext password matches a stored hash
func Compare(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}
