package errs

import (
	"context"
	"errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

var authCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"InvalidAccessKeyId":          true,
	"InvalidClientTokenId":        true,
	"InvalidSignatureException":   true,
	"SignatureDoesNotMatch":       true,
	"UnrecognizedClientException": true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"MissingAuthenticationToken":  true,
}

var notFoundCodes = map[string]bool{
	"NoSuchKey":                 true,
	"NotFound":                  true,
	"ResourceNotFoundException": true,
}

var conflictCodes = map[string]bool{
	"BucketAlreadyOwnedByYou": true,
	"ResourceInUseException":  true,
}

// FromAWS classifies an AWS SDK failure and copies the provider diagnostics
// (error code, fault type, request id) onto an *Error. A nil err returns nil.
func FromAWS(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	e := &Error{Kind: Connectivity, Code: CodeTransport, Op: op, Err: err}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.Code = CodeCancelled
		return e
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		e.RequestID = re.ServiceRequestID()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		e.ProviderCode = code
		e.Message = apiErr.ErrorMessage()
		switch apiErr.ErrorFault() {
		case smithy.FaultClient:
			e.ProviderType = "client"
		case smithy.FaultServer:
			e.ProviderType = "server"
		}
		switch {
		case authCodes[code]:
			e.Code = CodeAuth
		case code == "NoSuchBucket":
			e.Kind = NotFound
			e.Code = CodeBucketNotFound
		case notFoundCodes[code]:
			e.Kind = NotFound
			e.Code = ""
		case conflictCodes[code]:
			e.Kind = Conflict
			e.Code = CodeAlreadyExists
		default:
			e.Code = code
		}
	}
	return e
}
