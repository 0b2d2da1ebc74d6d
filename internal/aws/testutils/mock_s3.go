package testutils

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/mock"
)

// MockS3API is a mock implementation of the S3 API for testing
type MockS3API struct {
	mock.Mock
}

// GetObject is a mock implementation of the S3 GetObject API
func (m *MockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

// ServeObject makes the next GetObject for key return body.
func (m *MockS3API) ServeObject(key, body string) *mock.Call {
	return m.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return input.Key != nil && *input.Key == key
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil).Once()
}

// APIError mimics the error type returned by AWS service calls
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorCode returns the AWS error code
func (e *APIError) ErrorCode() string {
	return e.Code
}
