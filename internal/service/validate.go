package service

import (
	"github.com/go-playground/validator/v10"
)

// validate checks the `validate` struct tags on admin bulk payloads.
var validate = validator.New(validator.WithRequiredStructEnabled())
