package errors

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/bulkmailer/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"transport", apperrors.NewDelivery(apperrors.ErrTransport, "send", fmt.Errorf("quota")), "transport"},
		{"template missing", apperrors.NewDelivery(apperrors.ErrTemplateNotFound, "resolve", fmt.Errorf("fr")), "template_not_found"},
		{"initialization", apperrors.NewDelivery(apperrors.ErrInitialization, "sender", fmt.Errorf("no token")), "initialization"},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), "timeout"},
		{"innermost type", fmt.Errorf("dial: %w", &net.DNSError{Err: "no such host"}), "net_dnserror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
