package domain

import "errors"

var (
	ErrInvalidTaxRate  = errors.New("invalid_tax_rate")
	ErrNegativeAmount  = errors.New("negative_amount")
	ErrInvalidQuantity = errors.New("invalid_quantity")
)
