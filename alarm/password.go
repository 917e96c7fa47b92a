package alarm

import "errors"

// CheckPassword validates the panel access password: exactly 6 digits,
// none of them zero.
func CheckPassword(pwd string) error {
	if len(pwd) != 6 {
		return &ConfigError{Field: "password", Err: errors.New("must have exactly 6 digits")}
	}
	for i := 0; i < len(pwd); i++ {
		if pwd[i] < '1' || pwd[i] > '9' {
			return &ConfigError{Field: "password", Err: errors.New("must contain only digits from 1 to 9")}
		}
	}
	return nil
}
