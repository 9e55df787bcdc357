package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost is the bcrypt work factor for account passwords.
const bcryptCost = 12

// HashPassword hashes a plaintext account password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if errHash != nil {
		return "", errHash
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the
// stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
