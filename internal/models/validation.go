package models

import "github.com/go-playground/validator/v10"

// Validate is the shared struct validator for request payloads
var Validate = validator.New()
