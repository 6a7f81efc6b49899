package port

// PasswordVerifier checks a plaintext secret against a stored encoded hash.
type PasswordVerifier interface {
	Verify(password string, encoded string) (bool, error)
}
