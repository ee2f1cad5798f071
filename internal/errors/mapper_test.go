package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

func TestMap(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"verification", Policy(CodeVerificationRequired, "verify first"), codes.FailedPrecondition},
		{"limit", Policy(CodeSignalLimitReached, "limit"), codes.ResourceExhausted},
		{"forbidden wrapped", fmt.Errorf("unmatch: %w", Forbidden("nope")), codes.PermissionDenied},
		{"gorm not found", gorm.ErrRecordNotFound, codes.NotFound},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"infra", fmt.Errorf("dial tcp: refused"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, status.Code(Map(tc.err)))
		})
	}
	assert.Nil(t, Map(nil))
}

func TestPayloadHidesInfrastructureDetail(t *testing.T) {
	p := Payload(fmt.Errorf("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Empty(t, p.ErrorCode)
	assert.NotContains(t, p.Message, "10.0.0.3")

	p = Payload(Policy(CodeInsufficientPhotos, "add at least 2 photos"))
	assert.Equal(t, CodeInsufficientPhotos, p.ErrorCode)
	assert.Equal(t, "add at least 2 photos", p.Message)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeTooManyRequests, CodeOf(fmt.Errorf("wrap: %w", Policy(CodeTooManyRequests, "x"))))
	assert.Equal(t, CodeNotFound, CodeOf(gorm.ErrRecordNotFound))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
	assert.True(t, IsPolicy(Forbidden("x")))
	assert.False(t, IsPolicy(fmt.Errorf("x")))
}
