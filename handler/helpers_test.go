package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

func newTestValidator() *validator.Validate {
	return validator.New()
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
