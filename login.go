package goRecovery

import (
	"regexp"
	"strings"
)

// LoginType is the shape of a login string. It decides which channel is
// tried first and is passed to the contact provider as a lookup hint.
type LoginType string

const (
	LoginEmail LoginType = "email"
	LoginPhone LoginType = "phone"
	LoginOther LoginType = "login"
)

var (
	emailLoginPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneLoginPattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{5,}[0-9]$`)
)

// ClassifyLogin reports whether login looks like an email address, a phone
// number, or neither.
func ClassifyLogin(login string) LoginType {
	login = strings.TrimSpace(login)
	switch {
	case login == "":
		return LoginOther
	case emailLoginPattern.MatchString(login):
		return LoginEmail
	case phoneLoginPattern.MatchString(login) && countDigits(login) >= 7:
		return LoginPhone
	default:
		return LoginOther
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
