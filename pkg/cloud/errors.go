package cloud

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// BucketAlreadyExists stays a failure: another account owns that name.
var alreadyExistsCodes = map[string]bool{
	"ResourceInUseException":  true,
	"BucketAlreadyOwnedByYou": true,
}

var notFoundCodes = map[string]bool{
	"ResourceNotFoundException":               true,
	"NotFound":                                true,
	"NoSuchBucket":                            true,
	"NotFoundException":                       true,
	"QueueDoesNotExist":                       true,
	"AWS.SimpleQueueService.NonExistentQueue": true,
}

// classify maps service error codes onto the backend sentinels so callers
// can use errors.Is without knowing the SDK. Other errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case alreadyExistsCodes[code]:
			return fmt.Errorf("%s: %w: %w", op, backend.ErrAlreadyExists, err)
		case notFoundCodes[code]:
			return fmt.Errorf("%s: %w: %w", op, backend.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
