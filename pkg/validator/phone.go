package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates phone number length is not 10 digits
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")

	// ErrInvalidPrefix indicates phone number doesn't start with the mobile prefix 01
	ErrInvalidPrefix = errors.New("phone number must start with 01")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrUnknownOperator indicates no mobile-money operator serves the number
	ErrUnknownOperator = errors.New("phone number does not belong to a mobile-money operator")
)

// Mobile-money operator modes understood by the payment gateway
const (
	OperatorMTN  = "mtn_open"
	OperatorMoov = "moov"
)

// CountryCode is the international dialling code stripped during sanitising
const CountryCode = "229"

// operatorBlocks maps the two digits after "01" to the operator owning the block
var operatorBlocks = map[string]string{
	"40": OperatorMTN, "41": OperatorMTN, "42": OperatorMTN, "46": OperatorMTN,
	"50": OperatorMTN, "51": OperatorMTN, "52": OperatorMTN, "53": OperatorMTN,
	"54": OperatorMTN, "56": OperatorMTN, "57": OperatorMTN, "59": OperatorMTN,
	"61": OperatorMTN, "62": OperatorMTN, "66": OperatorMTN, "67": OperatorMTN,
	"69": OperatorMTN, "90": OperatorMTN, "91": OperatorMTN, "96": OperatorMTN,
	"97": OperatorMTN,
	"55": OperatorMoov, "58": OperatorMoov, "60": OperatorMoov, "63": OperatorMoov,
	"64": OperatorMoov, "65": OperatorMoov, "68": OperatorMoov, "94": OperatorMoov,
	"95": OperatorMoov, "98": OperatorMoov, "99": OperatorMoov,
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a mobile number.
// Accepts 0197123456, 01 97 12 34 56, +229 01 97 12 34 56 and similar.
// Returns the sanitized number (digits only) and error if invalid.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if phone == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if !strings.HasPrefix(sanitized, "01") {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and the country code
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)

	if strings.HasPrefix(phone, CountryCode) && len(phone) == len(CountryCode)+10 {
		phone = phone[len(CountryCode):]
	}

	return phone
}

// Format formats a phone number in the display format: 01 XX XX XX XX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s %s %s %s %s",
		sanitized[0:2], sanitized[2:4], sanitized[4:6], sanitized[6:8], sanitized[8:10],
	), nil
}

// GetOperator returns the gateway mode of the operator serving the number
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	operator, ok := operatorBlocks[sanitized[2:4]]
	if !ok {
		return "", ErrUnknownOperator
	}
	return operator, nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
