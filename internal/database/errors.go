package database

import "errors"

var (
	// ErrBookingNotAssignable means the booking is not paid and unassigned
	ErrBookingNotAssignable = errors.New("booking is not awaiting assignment")
	// ErrDetailerNotEligible means the chosen detailer cannot take the booking
	ErrDetailerNotEligible = errors.New("detailer is not eligible for this booking")
	// ErrBookingNotFound is returned by transactional operations that must lock the row
	ErrBookingNotFound = errors.New("booking not found")
)
