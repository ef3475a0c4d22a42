package validate

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrStationCode indicates a station code outside the issued format.
	ErrStationCode = errors.New("validate: station code must match EST-NNN or EST-NNNN")
	// ErrInvoiceNumber indicates a malformed invoice number.
	ErrInvoiceNumber = errors.New("validate: invoice number must match INV- followed by 3 to 12 alphanumerics")
)

var (
	stationCodeRe   = regexp.MustCompile(`^EST-\d{3,4}$`)
	invoiceNumberRe = regexp.MustCompile(`^INV-[A-Z0-9]{3,12}$`)
)

// StationCode checks the immutable station code format assigned at creation.
func StationCode(code string) error {
	if !stationCodeRe.MatchString(code) {
		return ErrStationCode
	}
	return nil
}

// InvoiceNumber checks invoice well-formedness. Uniqueness within a station
// is enforced by the database, not here.
func InvoiceNumber(number string) error {
	if !invoiceNumberRe.MatchString(strings.ToUpper(number)) {
		return ErrInvoiceNumber
	}
	return nil
}
