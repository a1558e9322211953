package utils

import (
	"github.com/pkg/errors"
)

// Attaches formatted details to a sentinel error. The result still matches the sentinel with errors.Is
func MakeError(err error, detailsBody string, args ...any) error {
	return errors.Wrapf(err, detailsBody, args...)
}
